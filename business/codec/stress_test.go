//go:build !integration

package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"mimic/business/choice"
	"mimic/business/partition"
	"mimic/domain"

	"github.com/stretchr/testify/require"
)

// scenario params
const (
	stressIndividuals    = 400
	stressDecisionsEach  = 12
	stressMaxChoices     = 6
	stressPartitions     = 7
	stressFeatureSpread  = 100.0
	stressMissingFeature = -1.0
)

var stressFeatures = []string{"size", "age", "price"}

func stressTable(rng *rand.Rand) domain.Table {
	cols := append([]string{"_individual", "_decision", "_selected", "_choice"}, stressFeatures...)
	var rows []domain.Row
	choiceID := int64(0)
	for ind := 0; ind < stressIndividuals; ind++ {
		for d := 0; d < stressDecisionsEach; d++ {
			decision := int64(ind*stressDecisionsEach+d) - 2000 // negative ids too
			k := 1 + rng.Intn(stressMaxChoices)
			sel := rng.Intn(k)
			for a := 0; a < k; a++ {
				row := domain.Row{
					"_individual": int64(ind),
					"_decision":   decision,
					"_selected":   a == sel,
					"_choice":     choiceID,
				}
				for _, f := range stressFeatures {
					row[f] = rng.Float64() * stressFeatureSpread
				}
				rows = append(rows, row)
				choiceID++
			}
		}
	}
	return domain.Table{Columns: cols, Rows: rows}
}

func TestStress_PartitionCollapseCodecExpand(t *testing.T) {
	rng := rand.New(rand.NewSource(20240601))
	table := stressTable(rng)

	cfg := domain.CollapseConfig{
		MaxChoices:    stressMaxChoices,
		Features:      stressFeatures,
		MissingValues: map[string]float64{},
	}
	for _, f := range stressFeatures {
		cfg.MissingValues[f] = stressMissingFeature
	}
	schema := SchemaOf(cfg)
	c, err := choice.NewCollapser(cfg)
	require.NoError(t, err)
	e, err := choice.NewExpander(cfg)
	require.NoError(t, err)

	seen := make(map[int64]int)
	for p := 0; p < stressPartitions; p++ {
		spec := domain.PartitionSpec{Partition: p, Total: stressPartitions, Column: domain.ColumnDecision}

		part := domain.Table{Columns: table.Columns}
		for _, row := range table.Rows {
			if partition.Contains(spec, row["_decision"].(int64)) {
				part.Rows = append(part.Rows, row)
			}
		}

		groups, err := choice.Group(part, domain.ChoiceSchema{ChoiceColumn: domain.ColumnChoice, Features: stressFeatures})
		require.NoError(t, err)
		rows, err := c.Collapse(groups)
		require.NoError(t, err)

		var buf bytes.Buffer
		w, err := NewWriter(&buf, schema)
		require.NoError(t, err)
		for _, row := range rows {
			require.NoError(t, w.Write(row))
		}
		require.NoError(t, w.Close())
		require.Equal(t, len(rows)*schema.RecordSize(), buf.Len()-headerLen(t, schema))

		r, err := NewReader(&buf, schema)
		require.NoError(t, err)
		decoded, err := r.ReadAll()
		require.NoError(t, err)
		require.Len(t, decoded, len(rows))

		scored := make([]domain.ScoredRow, len(decoded))
		for i := range decoded {
			require.Equal(t, rows[i].SelectedSlot, decoded[i].SelectedSlot)
			require.Equal(t, rows[i].Slots, decoded[i].Slots)
			decoded[i].Key, decoded[i].Size, decoded[i].Choices = rows[i].Key, rows[i].Size, rows[i].Choices
			scored[i] = domain.ScoredRow{CollapsedRow: decoded[i], Probabilities: make([]float64, stressMaxChoices)}
		}

		preds, err := e.Expand(scored)
		require.NoError(t, err)
		for _, pred := range choice.DropPadding(preds) {
			seen[pred.Choice]++
		}
	}

	require.Len(t, seen, len(table.Rows))
	for id, n := range seen {
		require.Equal(t, 1, n, "choice %d", id)
	}
}

func headerLen(t *testing.T, s Schema) int {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, s)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Len()
}
