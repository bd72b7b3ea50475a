package domain

import (
	"errors"
	"fmt"
)

// Data-quality errors. None of them are retriable: rerunning the partition
// yields the same error until the data or the configuration changes.

type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("schema error: missing column %q", e.Column)
	}
	return fmt.Sprintf("schema error: column %q: %s", e.Column, e.Reason)
}

type ChoiceOverflowError struct {
	Key        DecisionKey
	Size       int
	MaxChoices int
}

func (e *ChoiceOverflowError) Error() string {
	return fmt.Sprintf("choice overflow: %s has %d alternatives, max_choices is %d", e.Key, e.Size, e.MaxChoices)
}

type NoSelectionError struct {
	Key DecisionKey
}

func (e *NoSelectionError) Error() string {
	return fmt.Sprintf("no selected alternative: %s", e.Key)
}

type MultipleSelectionError struct {
	Key   DecisionKey
	Slots []int
}

func (e *MultipleSelectionError) Error() string {
	return fmt.Sprintf("multiple selected alternatives: %s slots=%v", e.Key, e.Slots)
}

// CodecError reports a record that does not match the declared layout.
type CodecError struct {
	Record int // zero-based record index, -1 for the file header
	Reason string
}

func (e *CodecError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("codec error: header: %s", e.Reason)
	}
	return fmt.Sprintf("codec error: record %d: %s", e.Record, e.Reason)
}

// IsDataError reports whether err is one of the non-retriable data-quality errors.
func IsDataError(err error) bool {
	var (
		schemaErr   *SchemaError
		overflowErr *ChoiceOverflowError
		noSelErr    *NoSelectionError
		multiSelErr *MultipleSelectionError
		codecErr    *CodecError
	)
	return errors.As(err, &schemaErr) ||
		errors.As(err, &overflowErr) ||
		errors.As(err, &noSelErr) ||
		errors.As(err, &multiSelErr) ||
		errors.As(err, &codecErr)
}

// ErrorKind is a short label used in metrics and logs.
func ErrorKind(err error) string {
	var (
		schemaErr   *SchemaError
		overflowErr *ChoiceOverflowError
		noSelErr    *NoSelectionError
		multiSelErr *MultipleSelectionError
		codecErr    *CodecError
	)
	switch {
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &overflowErr):
		return "choice_overflow"
	case errors.As(err, &noSelErr):
		return "no_selection"
	case errors.As(err, &multiSelErr):
		return "multiple_selection"
	case errors.As(err, &codecErr):
		return "codec"
	default:
		return "other"
	}
}
