package choice

import (
	"errors"
	"fmt"

	"mimic/domain"

	"github.com/hashicorp/go-multierror"
)

// Collapser packs decision groups into fixed-width rows of MaxChoices slots.
// MaxChoices is static and shared by the record build and the inference
// path; a group larger than it is an error, never truncated.
type Collapser struct {
	maxChoices int
	features   []string
	missing    []float32
	selection  domain.SelectionPolicy
	failFast   bool
}

func NewCollapser(cfg domain.CollapseConfig) (*Collapser, error) {
	missing, err := validateLayout(cfg)
	if err != nil {
		return nil, err
	}

	selection := cfg.Selection
	switch selection {
	case "":
		selection = domain.SelectionError
	case domain.SelectionError, domain.SelectionFirst, domain.SelectionLast:
	default:
		return nil, fmt.Errorf("unknown selection policy %q", cfg.Selection)
	}

	return &Collapser{
		maxChoices: cfg.MaxChoices,
		features:   append([]string(nil), cfg.Features...),
		missing:    missing,
		selection:  selection,
		failFast:   cfg.FailFast,
	}, nil
}

// validateLayout checks the parts of the config that define the record
// layout and returns the missing values in feature order.
func validateLayout(cfg domain.CollapseConfig) ([]float32, error) {
	if cfg.MaxChoices <= 0 {
		return nil, fmt.Errorf("max_choices must be positive, got %d", cfg.MaxChoices)
	}
	if len(cfg.Features) == 0 {
		return nil, errors.New("at least one feature is required")
	}

	seen := make(map[string]struct{}, len(cfg.Features))
	missing := make([]float32, len(cfg.Features))
	for i, f := range cfg.Features {
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("duplicate feature %q", f)
		}
		seen[f] = struct{}{}

		v, ok := cfg.MissingValues[f]
		if !ok {
			return nil, fmt.Errorf("no missing value configured for feature %q", f)
		}
		missing[i] = float32(v)
	}
	return missing, nil
}

func (c *Collapser) MaxChoices() int {
	return c.maxChoices
}

func (c *Collapser) Features() []string {
	return c.features
}

// Columns lists the wide column names in record order: slot-major, features
// in declared order inside each slot.
func (c *Collapser) Columns() []string {
	cols := make([]string, 0, c.maxChoices*len(c.features))
	for slot := 0; slot < c.maxChoices; slot++ {
		for _, f := range c.features {
			cols = append(cols, domain.SlotColumn(f, slot))
		}
	}
	return cols
}

// CollapseGroup turns one decision group into a CollapsedRow. The group's
// features must be aligned with the collapser's feature list.
func (c *Collapser) CollapseGroup(group domain.DecisionGroup) (domain.CollapsedRow, error) {
	k := len(group.Rows)
	if k > c.maxChoices {
		return domain.CollapsedRow{}, &domain.ChoiceOverflowError{Key: group.Key, Size: k, MaxChoices: c.maxChoices}
	}

	selected, err := c.selectedSlot(group)
	if err != nil {
		return domain.CollapsedRow{}, err
	}

	nf := len(c.features)
	values := make([]float32, c.maxChoices*nf)
	slots := make([][]float32, c.maxChoices)
	choices := make([]int64, k)

	for slot := 0; slot < c.maxChoices; slot++ {
		slots[slot] = values[slot*nf : (slot+1)*nf : (slot+1)*nf]
		if slot >= k {
			copy(slots[slot], c.missing)
			continue
		}

		row := group.Rows[slot]
		if len(row.Features) != nf {
			return domain.CollapsedRow{}, &domain.SchemaError{
				Column: "features",
				Reason: fmt.Sprintf("%s slot %d has %d features, want %d", group.Key, slot, len(row.Features), nf),
			}
		}
		for f, v := range row.Features {
			slots[slot][f] = float32(v)
		}
		choices[slot] = row.Choice
	}

	return domain.CollapsedRow{
		Key:          group.Key,
		SelectedSlot: selected,
		Size:         k,
		Choices:      choices,
		Slots:        slots,
	}, nil
}

func (c *Collapser) selectedSlot(group domain.DecisionGroup) (int, error) {
	var hits []int
	for i, row := range group.Rows {
		if row.Selected {
			hits = append(hits, i)
		}
	}

	switch {
	case len(hits) == 0:
		return 0, &domain.NoSelectionError{Key: group.Key}
	case len(hits) == 1:
		return hits[0], nil
	}

	switch c.selection {
	case domain.SelectionFirst:
		return hits[0], nil
	case domain.SelectionLast:
		return hits[len(hits)-1], nil
	default:
		return 0, &domain.MultipleSelectionError{Key: group.Key, Slots: hits}
	}
}

// Collapse collapses every group. A malformed group is reported in the
// returned multierror and skipped; the remaining rows are still returned.
// With FailFast the first malformed group stops the run.
func (c *Collapser) Collapse(groups []domain.DecisionGroup) ([]domain.CollapsedRow, error) {
	out := make([]domain.CollapsedRow, 0, len(groups))
	var errs *multierror.Error

	for _, g := range groups {
		row, err := c.CollapseGroup(g)
		if err != nil {
			if c.failFast {
				return out, err
			}
			errs = multierror.Append(errs, err)
			continue
		}
		out = append(out, row)
	}

	return out, errs.ErrorOrNil()
}

// MaxGroupSize is the largest group in groups, useful to size MaxChoices.
func MaxGroupSize(groups []domain.DecisionGroup) int {
	largest := 0
	for _, g := range groups {
		if len(g.Rows) > largest {
			largest = len(g.Rows)
		}
	}
	return largest
}

// Rejections flattens the error returned by Collapse into one error per
// rejected group.
func Rejections(err error) []error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.Errors
	}
	return []error{err}
}
