package model

import (
	"fmt"
	"sort"
)

// LayerSpec describes one hidden layer of the per-slot tower.
type LayerSpec struct {
	Name       string
	Units      int
	Activation string
}

var registry = map[string]LayerSpec{
	"D8":  {Name: "D8", Units: 8, Activation: "relu"},
	"D16": {Name: "D16", Units: 16, Activation: "relu"},
	"D32": {Name: "D32", Units: 32, Activation: "relu"},
	"D64": {Name: "D64", Units: 64, Activation: "relu"},
}

func Lookup(name string) (LayerSpec, error) {
	spec, ok := registry[name]
	if !ok {
		return LayerSpec{}, fmt.Errorf("unknown layer %q (known: %v)", name, LayerNames())
	}
	return spec, nil
}

// LayerNames lists the registered layers in sorted order.
func LayerNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateLayers resolves every name of a model definition.
func ValidateLayers(names []string) ([]LayerSpec, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("model has no layers")
	}
	specs := make([]LayerSpec, len(names))
	for i, name := range names {
		spec, err := Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		specs[i] = spec
	}
	return specs, nil
}
