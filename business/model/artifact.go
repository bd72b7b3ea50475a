package model

import (
	"encoding/json"
	"fmt"
	"io"

	"mimic/domain"
)

// Dense holds the parameters of one dense layer. Weights is indexed
// [input][unit].
type Dense struct {
	Name    string      `json:"name"`
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// Artifact is the serialized model: the collapse layout it was trained on,
// the hidden layers and a single-unit linear output head.
type Artifact struct {
	ExperimentName string                `json:"experiment_name"`
	RunID          string                `json:"run_id"`
	Collapse       domain.CollapseConfig `json:"collapse"`
	Layers         []Dense               `json:"layers"`
	Output         Dense                 `json:"output"`
}

// Validate checks layer names against the registry and every weight shape
// against its neighbours.
func (a Artifact) Validate() error {
	names := make([]string, len(a.Layers))
	for i, l := range a.Layers {
		names[i] = l.Name
	}
	specs, err := ValidateLayers(names)
	if err != nil {
		return err
	}
	if a.Collapse.MaxChoices <= 0 {
		return fmt.Errorf("artifact max_choices must be positive")
	}

	in := len(a.Collapse.Features)
	if in == 0 {
		return fmt.Errorf("artifact has no features")
	}
	for i, l := range a.Layers {
		if err := checkDense(l, in, specs[i].Units); err != nil {
			return fmt.Errorf("layer %d (%s): %w", i, l.Name, err)
		}
		in = specs[i].Units
	}
	if err := checkDense(a.Output, in, 1); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

func checkDense(d Dense, in, out int) error {
	if len(d.Weights) != in {
		return fmt.Errorf("weights have %d inputs, expected %d", len(d.Weights), in)
	}
	for i, w := range d.Weights {
		if len(w) != out {
			return fmt.Errorf("weights row %d has %d units, expected %d", i, len(w), out)
		}
	}
	if len(d.Biases) != out {
		return fmt.Errorf("biases have %d units, expected %d", len(d.Biases), out)
	}
	return nil
}

// ReadArtifact decodes and validates a model.json document.
func ReadArtifact(r io.Reader) (Artifact, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return Artifact{}, fmt.Errorf("decode model artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return Artifact{}, fmt.Errorf("invalid model artifact: %w", err)
	}
	return a, nil
}

func WriteArtifact(w io.Writer, a Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}
