package choice

import (
	"fmt"

	"mimic/domain"
)

// Group splits a long-form table into decision groups keyed by
// (individual, decision). Groups come back in first-appearance order and rows
// keep their input order inside a group, which fixes the slot assignment.
func Group(table domain.Table, schema domain.ChoiceSchema) ([]domain.DecisionGroup, error) {
	schema = schema.WithDefaults()

	if err := checkColumns(table, schema); err != nil {
		return nil, err
	}

	index := make(map[domain.DecisionKey]int)
	groups := make([]domain.DecisionGroup, 0)

	for i, raw := range table.Rows {
		row, err := alternativeFromRow(raw, schema)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		pos, ok := index[row.Key]
		if !ok {
			pos = len(groups)
			index[row.Key] = pos
			groups = append(groups, domain.DecisionGroup{Key: row.Key})
		}
		groups[pos].Rows = append(groups[pos].Rows, row)
	}

	return groups, nil
}

// GroupIndex maps each decision key to its group.
func GroupIndex(groups []domain.DecisionGroup) map[domain.DecisionKey]domain.DecisionGroup {
	out := make(map[domain.DecisionKey]domain.DecisionGroup, len(groups))
	for _, g := range groups {
		out[g.Key] = g
	}
	return out
}

func checkColumns(table domain.Table, schema domain.ChoiceSchema) error {
	required := []string{schema.IndividualColumn, schema.DecisionColumn, schema.SelectedColumn}
	if schema.ChoiceColumn != "" {
		required = append(required, schema.ChoiceColumn)
	}
	required = append(required, schema.Features...)

	for _, col := range required {
		if !table.HasColumn(col) {
			return &domain.SchemaError{Column: col}
		}
	}
	return nil
}

func alternativeFromRow(raw domain.Row, schema domain.ChoiceSchema) (domain.AlternativeRow, error) {
	individual, ok := toInt64(raw[schema.IndividualColumn])
	if !ok {
		return domain.AlternativeRow{}, cellError(schema.IndividualColumn, raw, "integer id")
	}
	decision, ok := toInt64(raw[schema.DecisionColumn])
	if !ok {
		return domain.AlternativeRow{}, cellError(schema.DecisionColumn, raw, "integer id")
	}
	selected, ok := toBool(raw[schema.SelectedColumn])
	if !ok {
		return domain.AlternativeRow{}, cellError(schema.SelectedColumn, raw, "boolean")
	}

	choice := domain.NoChoice
	if schema.ChoiceColumn != "" {
		choice, ok = toInt64(raw[schema.ChoiceColumn])
		if !ok {
			return domain.AlternativeRow{}, cellError(schema.ChoiceColumn, raw, "integer id")
		}
	}

	features := make([]float64, len(schema.Features))
	for i, name := range schema.Features {
		v, ok := toFloat64(raw[name])
		if !ok {
			return domain.AlternativeRow{}, cellError(name, raw, "numeric value")
		}
		features[i] = v
	}

	return domain.AlternativeRow{
		Key:      domain.DecisionKey{Individual: individual, Decision: decision},
		Choice:   choice,
		Selected: selected,
		Features: features,
	}, nil
}

func cellError(column string, raw domain.Row, want string) error {
	return &domain.SchemaError{
		Column: column,
		Reason: fmt.Sprintf("expected %s, got %T(%v)", want, raw[column], raw[column]),
	}
}
