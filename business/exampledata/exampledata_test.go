package exampledata

import (
	"context"
	"testing"

	"mimic/business/choice"
	"mimic/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_CollapsesCleanly(t *testing.T) {
	table := Generate(Options{Seed: 1})
	require.Len(t, table.Rows, 200)

	groups, err := choice.Group(table, domain.ChoiceSchema{ChoiceColumn: domain.ColumnChoice, Features: Features})
	require.NoError(t, err)
	require.Len(t, groups, 100)

	c, err := choice.NewCollapser(domain.CollapseConfig{
		MaxChoices:    2,
		Features:      Features,
		MissingValues: map[string]float64{"size": -1, "age": -1},
	})
	require.NoError(t, err)
	rows, err := c.Collapse(groups)
	require.NoError(t, err)

	for _, row := range rows {
		sel := row.Slots[row.SelectedSlot]
		other := row.Slots[1-row.SelectedSlot]
		assert.Greater(t, sel[0], other[0])
		assert.Greater(t, sel[1], other[1])
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	assert.Equal(t, Generate(Options{Seed: 4, Individuals: 3, Decisions: 2}), Generate(Options{Seed: 4, Individuals: 3, Decisions: 2}))
}

type fakeWriter struct {
	key  map[string]any
	rows []domain.Row
}

func (f *fakeWriter) WriteRows(_ context.Context, _ domain.TableRef, _ []string, key map[string]any, rows []domain.Row) error {
	f.key, f.rows = key, rows
	return nil
}

func TestCreate(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, Create(context.Background(), w, domain.TableRef{Schema: "haven", Table: "example"}, Options{Individuals: 3, Decisions: 3}))
	assert.Nil(t, w.key)
	assert.Len(t, w.rows, 18)
}
