// Package model scores collapsed decision rows with a trained log-odds
// network: one shared dense tower applied to every slot, followed by a
// softmax over the real slots of each decision.
package model

import (
	"fmt"
	"io"
	"math"

	"mimic/domain"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type layer struct {
	w    *mat.Dense
	b    []float64
	relu bool
}

func newLayer(d Dense, relu bool) layer {
	in, out := len(d.Weights), len(d.Biases)
	w := mat.NewDense(in, out, nil)
	for i, row := range d.Weights {
		w.SetRow(i, row)
	}
	return layer{w: w, b: append([]float64(nil), d.Biases...), relu: relu}
}

func (l layer) forward(x mat.Matrix) *mat.Dense {
	var z mat.Dense
	z.Mul(x, l.w)
	z.Apply(func(_, j int, v float64) float64 {
		v += l.b[j]
		if l.relu && v < 0 {
			return 0
		}
		return v
	}, &z)
	return &z
}

type Network struct {
	artifact Artifact
	hidden   []layer
	output   layer
}

func New(a Artifact) (*Network, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	n := &Network{artifact: a, output: newLayer(a.Output, false)}
	for _, d := range a.Layers {
		spec, _ := Lookup(d.Name)
		n.hidden = append(n.hidden, newLayer(d, spec.Activation == "relu"))
	}
	return n, nil
}

// Load reads a model.json artifact.
func Load(r io.Reader) (*Network, error) {
	a, err := ReadArtifact(r)
	if err != nil {
		return nil, err
	}
	return New(a)
}

// CollapseConfig is the layout the network was trained on. Inference collapses
// with it so both paths agree on slot count, feature order and padding.
func (n *Network) CollapseConfig() domain.CollapseConfig {
	return n.artifact.Collapse
}

func (n *Network) Artifact() Artifact {
	return n.artifact
}

// LogOdds runs the tower over every slot of every row and returns a
// rows x MaxChoices matrix. Padding slots are scored too; Softmax masks them.
func (n *Network) LogOdds(rows []domain.CollapsedRow) (*mat.Dense, error) {
	maxChoices := n.artifact.Collapse.MaxChoices
	nf := len(n.artifact.Collapse.Features)
	if len(rows) == 0 {
		return nil, nil
	}

	out := mat.NewDense(len(rows), maxChoices, nil)
	x := mat.NewDense(len(rows), nf, nil)
	for slot := 0; slot < maxChoices; slot++ {
		for i, row := range rows {
			if len(row.Slots) != maxChoices {
				return nil, fmt.Errorf("%s: row has %d slots, model expects %d", row.Key, len(row.Slots), maxChoices)
			}
			values := row.Slots[slot]
			if len(values) != nf {
				return nil, fmt.Errorf("%s: slot %d has %d features, model expects %d", row.Key, slot, len(values), nf)
			}
			for f, v := range values {
				x.Set(i, f, float64(v))
			}
		}

		var h mat.Matrix = x
		for _, l := range n.hidden {
			h = l.forward(h)
		}
		score := n.output.forward(h)
		out.SetCol(slot, mat.Col(nil, 0, score))
	}
	return out, nil
}

// Softmax normalizes each row of logOdds over its first sizes[i] slots.
// Slots past the size get probability 0.
func Softmax(logOdds *mat.Dense, sizes []int) (*mat.Dense, error) {
	r, c := logOdds.Dims()
	if len(sizes) != r {
		return nil, fmt.Errorf("got %d sizes for %d rows", len(sizes), r)
	}

	probs := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		k := sizes[i]
		if k <= 0 || k > c {
			return nil, fmt.Errorf("row %d: size %d outside [1, %d]", i, k, c)
		}
		scores := mat.Row(nil, i, logOdds)[:k]
		lse := floats.LogSumExp(scores)
		for j, v := range scores {
			probs.Set(i, j, math.Exp(v-lse))
		}
	}
	return probs, nil
}

// Score attaches log-odds and probabilities to each row. Every row must carry
// its group size.
func (n *Network) Score(rows []domain.CollapsedRow) ([]domain.ScoredRow, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	logOdds, err := n.LogOdds(rows)
	if err != nil {
		return nil, err
	}

	sizes := make([]int, len(rows))
	for i, row := range rows {
		if row.Size == 0 {
			return nil, fmt.Errorf("%s: row has no group size", row.Key)
		}
		sizes[i] = row.Size
	}
	probs, err := Softmax(logOdds, sizes)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredRow, len(rows))
	for i, row := range rows {
		out[i] = domain.ScoredRow{
			CollapsedRow:  row,
			LogOdds:       mat.Row(nil, i, logOdds),
			Probabilities: mat.Row(nil, i, probs),
		}
	}
	return out, nil
}
