package domain

import "fmt"

// Default warehouse column names used by the log-odds tables.
const (
	ColumnIndividual = "_individual"
	ColumnDecision   = "_decision"
	ColumnSelected   = "_selected"
	ColumnChoice     = "_choice"
	ColumnTrain      = "_train"
	ColumnPartition  = "_partition"
	ColumnSlot       = "_slot"
	ColumnLogOdds    = "log_odds"
	ColumnProb       = "probability"
	ColumnExperiment = "experiment_name"
	ColumnRunID      = "run_id"
)

// NoChoice marks a slot without an alternative id (padding, or a row decoded from a record file).
const NoChoice int64 = -1

// Row is one warehouse row keyed by column name.
type Row map[string]any

// Table is an ordered set of warehouse rows.
type Table struct {
	Columns []string
	Rows    []Row
}

func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ChoiceSchema names the columns that describe a decision in a long-form table.
type ChoiceSchema struct {
	IndividualColumn string   `json:"individual_column"`
	DecisionColumn   string   `json:"decision_column"`
	SelectedColumn   string   `json:"selected_column"`
	ChoiceColumn     string   `json:"choice_column"` // optional
	Features         []string `json:"features" validate:"required,min=1,dive,required"`
}

// WithDefaults fills empty column names with the standard ones.
func (s ChoiceSchema) WithDefaults() ChoiceSchema {
	if s.IndividualColumn == "" {
		s.IndividualColumn = ColumnIndividual
	}
	if s.DecisionColumn == "" {
		s.DecisionColumn = ColumnDecision
	}
	if s.SelectedColumn == "" {
		s.SelectedColumn = ColumnSelected
	}
	return s
}

// Columns lists the columns a partition read must return, in a fixed order.
func (s ChoiceSchema) Columns() []string {
	s = s.WithDefaults()
	cols := []string{s.IndividualColumn, s.DecisionColumn, s.SelectedColumn}
	if s.ChoiceColumn != "" {
		cols = append(cols, s.ChoiceColumn)
	}
	return append(cols, s.Features...)
}

type DecisionKey struct {
	Individual int64 `json:"individual"`
	Decision   int64 `json:"decision"`
}

func (k DecisionKey) String() string {
	return fmt.Sprintf("individual=%d decision=%d", k.Individual, k.Decision)
}

// AlternativeRow is one (individual, decision, alternative) row.
type AlternativeRow struct {
	Key      DecisionKey
	Choice   int64
	Selected bool
	Features []float64 // aligned with ChoiceSchema.Features
}

// DecisionGroup holds the alternatives of one decision in source order.
type DecisionGroup struct {
	Key  DecisionKey
	Rows []AlternativeRow
}

// CollapsedRow is the fixed-width, one-row-per-decision form of a DecisionGroup.
//
// Slots has MaxChoices entries, each holding one value per feature. Size is the
// number of real alternatives; it is 0 when unknown, which is the case for rows
// decoded from a record file.
type CollapsedRow struct {
	Key          DecisionKey
	SelectedSlot int
	Size         int
	Choices      []int64
	Slots        [][]float32
}

// Value returns feature f of slot i.
func (r CollapsedRow) Value(slot, feature int) float32 {
	return r.Slots[slot][feature]
}

// ScoredRow is a CollapsedRow plus one model probability per slot.
type ScoredRow struct {
	CollapsedRow
	Probabilities []float64
	LogOdds       []float64
}

// PredictionRow is one slot of a ScoredRow in long form.
type PredictionRow struct {
	Key         DecisionKey
	Choice      int64
	Slot        int
	Features    []float32
	LogOdds     float64
	Probability float64
	Padding     bool
}

// SlotColumn is the wide column name of feature at slot.
func SlotColumn(feature string, slot int) string {
	return fmt.Sprintf("%s_%d", feature, slot)
}

// SelectionPolicy decides what happens when a group has more than one selected row.
type SelectionPolicy string

const (
	SelectionError SelectionPolicy = "error"
	SelectionFirst SelectionPolicy = "first"
	SelectionLast  SelectionPolicy = "last"
)

// CollapseConfig drives both the collapse and the expand transforms.
type CollapseConfig struct {
	MaxChoices    int                `json:"max_choices" validate:"required,gt=0"`
	Features      []string           `json:"features" validate:"required,min=1,dive,required"`
	MissingValues map[string]float64 `json:"missing_values" validate:"required"`
	Selection     SelectionPolicy    `json:"selection_policy" validate:"omitempty,oneof=error first last"`
	FailFast      bool               `json:"fail_fast"`
}
