// Package exampledata generates a small two-alternative choice table. In
// every decision the alternative with the larger size and age is selected.
package exampledata

import (
	"context"
	"fmt"
	"math/rand"

	"mimic/domain"
	"mimic/pkg/logger"
)

var Columns = []string{
	domain.ColumnChoice,
	domain.ColumnDecision,
	domain.ColumnIndividual,
	"size",
	"age",
	domain.ColumnSelected,
	domain.ColumnTrain,
}

// Features are the numeric columns of the example table.
var Features = []string{"size", "age"}

const (
	goodSize, goodAge = 10.0, 20.0
	badSize, badAge   = 5.0, 10.0
)

type Options struct {
	Individuals int   `json:"individuals"`
	Decisions   int   `json:"decisions"`
	Seed        int64 `json:"seed"`
}

func (o Options) withDefaults() Options {
	if o.Individuals <= 0 {
		o.Individuals = 10
	}
	if o.Decisions <= 0 {
		o.Decisions = 10
	}
	return o
}

// Generate builds the table. Every third individual is held out of training.
func Generate(opts Options) domain.Table {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewSource(opts.Seed))

	rows := make([]domain.Row, 0, 2*opts.Decisions*opts.Individuals)
	for alt := 0; alt < 2; alt++ {
		for decision := 0; decision < opts.Decisions; decision++ {
			for individual := 0; individual < opts.Individuals; individual++ {
				good := (decision+alt)%2 == 0
				size, age := badSize+rng.Float64()*5, badAge+rng.Float64()*10
				if good {
					size, age = goodSize+rng.Float64()*5, goodAge+rng.Float64()*10
				}
				rows = append(rows, domain.Row{
					domain.ColumnChoice:     int64(len(rows)),
					domain.ColumnDecision:   int64(decision),
					domain.ColumnIndividual: int64(individual),
					"size":                  size,
					"age":                   age,
					domain.ColumnSelected:   good,
					domain.ColumnTrain:      individual%3 != 0,
				})
			}
		}
	}
	return domain.Table{Columns: Columns, Rows: rows}
}

type TableWriter interface {
	WriteRows(ctx context.Context, ref domain.TableRef, columns []string, key map[string]any, rows []domain.Row) error
}

// Create replaces ref with a freshly generated example table.
func Create(ctx context.Context, w TableWriter, ref domain.TableRef, opts Options) error {
	table := Generate(opts)
	if err := w.WriteRows(ctx, ref, table.Columns, nil, table.Rows); err != nil {
		return fmt.Errorf("write example data to %s: %w", ref, err)
	}
	logger.Info("Example data written", "table", ref.String(), "rows", len(table.Rows))
	return nil
}
