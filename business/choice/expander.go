package choice

import (
	"fmt"
	"sync"

	"mimic/domain"
	"mimic/pkg/logger"
)

// Expander is the inverse of Collapser: one scored wide row becomes one
// prediction row per slot.
type Expander struct {
	maxChoices int
	features   []string
	missing    []float32

	sentinelWarn sync.Once
}

func NewExpander(cfg domain.CollapseConfig) (*Expander, error) {
	missing, err := validateLayout(cfg)
	if err != nil {
		return nil, err
	}
	return &Expander{
		maxChoices: cfg.MaxChoices,
		features:   append([]string(nil), cfg.Features...),
		missing:    missing,
	}, nil
}

// Expand emits MaxChoices rows per input row, padding slots included and
// flagged. Padding is decided from the row's Size; rows with unknown Size
// fall back to comparing every feature against its missing value, which
// misclassifies a real alternative whose features all equal the sentinels.
func (e *Expander) Expand(rows []domain.ScoredRow) ([]domain.PredictionRow, error) {
	out := make([]domain.PredictionRow, 0, len(rows)*e.maxChoices)

	for _, row := range rows {
		if len(row.Slots) != e.maxChoices {
			return nil, fmt.Errorf("%s: row has %d slots, expected %d", row.Key, len(row.Slots), e.maxChoices)
		}
		if len(row.Probabilities) != e.maxChoices {
			return nil, fmt.Errorf("%s: got %d probabilities, expected %d", row.Key, len(row.Probabilities), e.maxChoices)
		}
		if row.LogOdds != nil && len(row.LogOdds) != e.maxChoices {
			return nil, fmt.Errorf("%s: got %d log-odds, expected %d", row.Key, len(row.LogOdds), e.maxChoices)
		}
		if row.Size > e.maxChoices {
			return nil, &domain.ChoiceOverflowError{Key: row.Key, Size: row.Size, MaxChoices: e.maxChoices}
		}
		if row.Size == 0 {
			e.sentinelWarn.Do(func() {
				logger.Warn("Expanding rows without group cardinality, padding detected from missing values",
					"max_choices", e.maxChoices,
				)
			})
		}

		for slot := 0; slot < e.maxChoices; slot++ {
			if len(row.Slots[slot]) != len(e.features) {
				return nil, fmt.Errorf("%s: slot %d has %d features, expected %d", row.Key, slot, len(row.Slots[slot]), len(e.features))
			}

			pred := domain.PredictionRow{
				Key:         row.Key,
				Choice:      domain.NoChoice,
				Slot:        slot,
				Features:    append([]float32(nil), row.Slots[slot]...),
				Probability: row.Probabilities[slot],
				Padding:     e.isPadding(row.CollapsedRow, slot),
			}
			if row.LogOdds != nil {
				pred.LogOdds = row.LogOdds[slot]
			}
			if slot < len(row.Choices) {
				pred.Choice = row.Choices[slot]
			}
			out = append(out, pred)
		}
	}

	return out, nil
}

func (e *Expander) isPadding(row domain.CollapsedRow, slot int) bool {
	if row.Size > 0 {
		return slot >= row.Size
	}
	for f, v := range row.Slots[slot] {
		if v != e.missing[f] {
			return false
		}
	}
	return true
}

// DropPadding keeps the rows that stand for a real alternative.
func DropPadding(rows []domain.PredictionRow) []domain.PredictionRow {
	out := make([]domain.PredictionRow, 0, len(rows))
	for _, r := range rows {
		if !r.Padding {
			out = append(out, r)
		}
	}
	return out
}
