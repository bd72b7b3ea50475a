package inference

import "mimic/domain"

// Output shapes prediction rows for the upload table. Every row carries the
// experiment, run, split and partition it was produced by; together they
// form the overwrite key of a partition invocation.
type Output struct {
	ExperimentName string
	RunID          string
	Spec           domain.PartitionSpec
	Features       []string
	WithChoice     bool
}

func (o Output) Key() map[string]any {
	return map[string]any{
		domain.ColumnExperiment: o.ExperimentName,
		domain.ColumnRunID:      o.RunID,
		domain.ColumnTrain:      o.Spec.Train,
		domain.ColumnPartition:  o.Spec.Partition,
	}
}

func (o Output) Columns() []string {
	cols := []string{
		domain.ColumnExperiment,
		domain.ColumnRunID,
		domain.ColumnTrain,
		domain.ColumnPartition,
		domain.ColumnIndividual,
		domain.ColumnDecision,
	}
	if o.WithChoice {
		cols = append(cols, domain.ColumnChoice)
	}
	cols = append(cols, domain.ColumnSlot)
	cols = append(cols, o.Features...)
	return append(cols, domain.ColumnLogOdds, domain.ColumnProb)
}

// Rows shapes predictions for the upload table. Feature values come from the
// source alternative in groups, so they are written back as read; the
// collapsed float32 values are only used when a prediction has no source row.
func (o Output) Rows(preds []domain.PredictionRow, groups map[domain.DecisionKey]domain.DecisionGroup) []domain.Row {
	out := make([]domain.Row, 0, len(preds))
	for _, p := range preds {
		row := domain.Row{
			domain.ColumnExperiment: o.ExperimentName,
			domain.ColumnRunID:      o.RunID,
			domain.ColumnTrain:      o.Spec.Train,
			domain.ColumnPartition:  o.Spec.Partition,
			domain.ColumnIndividual: p.Key.Individual,
			domain.ColumnDecision:   p.Key.Decision,
			domain.ColumnSlot:       p.Slot,
			domain.ColumnLogOdds:    p.LogOdds,
			domain.ColumnProb:       p.Probability,
		}
		if o.WithChoice {
			row[domain.ColumnChoice] = p.Choice
		}
		source := sourceFeatures(groups, p)
		for i, f := range o.Features {
			if source != nil {
				row[f] = source[i]
			} else {
				row[f] = float64(p.Features[i])
			}
		}
		out = append(out, row)
	}
	return out
}

func sourceFeatures(groups map[domain.DecisionKey]domain.DecisionGroup, p domain.PredictionRow) []float64 {
	g, ok := groups[p.Key]
	if !ok || p.Slot >= len(g.Rows) {
		return nil
	}
	return g.Rows[p.Slot].Features
}
