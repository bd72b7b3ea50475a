// Package contrast resamples a partition of individuals into binary
// decisions: one selected row paired with one sampled alternative.
package contrast

import (
	"fmt"
	"math/rand"
	"sort"

	"mimic/business/choice"
	"mimic/business/partition"
	"mimic/domain"
)

const (
	ColumnOldDecision = "_old_decision"
	ColumnOldChoice   = "_old_choice"
)

type Options struct {
	DecisionsPerIndividual  int
	AlternativesPerDecision int
}

type Stats struct {
	Individuals int
	Selections  int
	Pairs       int
	// selections sampled from a decision with no alternative to pair with
	Unpaired int
}

type sourceRow struct {
	individual int64
	decision   int64
	row        domain.Row
}

type decisionKey struct {
	individual, decision int64
}

// Sample builds the contrast rows of one partition. Every selected row is
// sampled with replacement DecisionsPerIndividual times per individual.
// AlternativesPerDecision alternatives are drawn with replacement once per
// source decision and every sampled selection of that decision is paired
// with each of them. Each pair becomes a new decision whose ids stay inside
// spec's partition and differ between the train and test splits.
func Sample(table domain.Table, spec domain.PartitionSpec, opts Options, rng *rand.Rand) ([]domain.Row, Stats, error) {
	if opts.DecisionsPerIndividual <= 0 || opts.AlternativesPerDecision <= 0 {
		return nil, Stats{}, fmt.Errorf("decisions and alternatives per decision must be positive")
	}
	for _, col := range []string{domain.ColumnIndividual, domain.ColumnDecision, domain.ColumnSelected} {
		if !table.HasColumn(col) {
			return nil, Stats{}, &domain.SchemaError{Column: col}
		}
	}
	hasChoice := table.HasColumn(domain.ColumnChoice)

	var order []int64
	selections := map[int64][]sourceRow{}
	alternatives := map[decisionKey][]sourceRow{}

	for i, raw := range table.Rows {
		src, selected, err := parse(raw)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("row %d: %w", i, err)
		}
		if selected {
			if _, seen := selections[src.individual]; !seen {
				order = append(order, src.individual)
			}
			selections[src.individual] = append(selections[src.individual], src)
			continue
		}
		k := decisionKey{src.individual, src.decision}
		alternatives[k] = append(alternatives[k], src)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var (
		out   []domain.Row
		stats Stats
		pair  int64
		split = splitBit(spec)
	)
	drawn := map[decisionKey][]sourceRow{}
	stats.Individuals = len(order)
	for _, ind := range order {
		sel := selections[ind]
		for d := 0; d < opts.DecisionsPerIndividual; d++ {
			s := sel[rng.Intn(len(sel))]
			stats.Selections++

			k := decisionKey{s.individual, s.decision}
			alts, ok := drawn[k]
			if !ok {
				alts = draw(alternatives[k], opts.AlternativesPerDecision, rng)
				drawn[k] = alts
			}
			if len(alts) == 0 {
				stats.Unpaired++
				continue
			}
			for _, alt := range alts {
				decision := partition.GlobalID(2*pair+split, spec)
				first := 4*pair + 2*split
				out = append(out,
					relabel(s.row, decision, partition.GlobalID(first, spec), hasChoice, spec),
					relabel(alt.row, decision, partition.GlobalID(first+1, spec), hasChoice, spec),
				)
				pair++
			}
		}
	}
	stats.Pairs = int(pair)
	return out, stats, nil
}

// draw samples n rows of pool with replacement.
func draw(pool []sourceRow, n int, rng *rand.Rand) []sourceRow {
	if len(pool) == 0 {
		return nil
	}
	out := make([]sourceRow, n)
	for i := range out {
		out[i] = pool[rng.Intn(len(pool))]
	}
	return out
}

// splitBit keeps the generated ids of the train and test splits of the same
// partition apart.
func splitBit(spec domain.PartitionSpec) int64 {
	if spec.Train {
		return 1
	}
	return 0
}

func parse(raw domain.Row) (sourceRow, bool, error) {
	ind, ok := choice.ToInt64(raw[domain.ColumnIndividual])
	if !ok {
		return sourceRow{}, false, cellError(domain.ColumnIndividual, raw, "integer id")
	}
	dec, ok := choice.ToInt64(raw[domain.ColumnDecision])
	if !ok {
		return sourceRow{}, false, cellError(domain.ColumnDecision, raw, "integer id")
	}
	selected, ok := choice.ToBool(raw[domain.ColumnSelected])
	if !ok {
		return sourceRow{}, false, cellError(domain.ColumnSelected, raw, "boolean")
	}
	return sourceRow{individual: ind, decision: dec, row: raw}, selected, nil
}

func cellError(column string, raw domain.Row, want string) error {
	return &domain.SchemaError{Column: column, Reason: fmt.Sprintf("expected %s, got %T", want, raw[column])}
}

func relabel(src domain.Row, decision, choice int64, hasChoice bool, spec domain.PartitionSpec) domain.Row {
	row := make(domain.Row, len(src)+3)
	for k, v := range src {
		row[k] = v
	}
	row[ColumnOldDecision] = src[domain.ColumnDecision]
	if hasChoice {
		row[ColumnOldChoice] = src[domain.ColumnChoice]
	}
	row[domain.ColumnDecision] = decision
	row[domain.ColumnChoice] = choice
	row[domain.ColumnPartition] = spec.Partition
	return row
}

// Columns is the output column list for a source table.
func Columns(source []string) []string {
	out := make([]string, 0, len(source)+4)
	hasChoice := false
	for _, c := range source {
		if c == domain.ColumnChoice {
			hasChoice = true
		}
		if c == domain.ColumnPartition {
			continue
		}
		out = append(out, c)
	}
	if !hasChoice {
		out = append(out, domain.ColumnChoice)
	}
	out = append(out, ColumnOldDecision)
	if hasChoice {
		out = append(out, ColumnOldChoice)
	}
	return append(out, domain.ColumnPartition)
}
