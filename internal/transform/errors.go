package transform

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFitted is matched by every *NotFittedError.
	ErrNotFitted = errors.New("transformer has not been fitted")
	// ErrMissingKey is matched by *MissingDummiesError.
	ErrMissingKey = errors.New("missing key")
)

// NotFittedError is returned by Transform before a successful Fit.
type NotFittedError struct {
	Transform string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("%s: fit before transforming: %v", e.Transform, ErrNotFitted)
}

func (e *NotFittedError) Is(target error) bool { return target == ErrNotFitted }

// ValidationError rejects a configuration or input table.
type ValidationError struct {
	Transform string
	Columns   []string
	Reason    string
}

func (e *ValidationError) Error() string {
	if len(e.Columns) == 0 {
		return fmt.Sprintf("%s: %s", e.Transform, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Transform, e.Reason, strings.Join(e.Columns, ", "))
}

// MissingColumnsError names required columns absent from a table.
type MissingColumnsError struct {
	Transform string
	Columns   []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: columns not found: %s", e.Transform, strings.Join(e.Columns, ", "))
}

// MissingDummiesError lists requested indicator columns that the data never
// produced.
type MissingDummiesError struct {
	Missing []string
}

func (e *MissingDummiesError) Error() string {
	return fmt.Sprintf("dummies: %v: %s", ErrMissingKey, strings.Join(e.Missing, ", "))
}

func (e *MissingDummiesError) Is(target error) bool { return target == ErrMissingKey }

// state is the Unfitted -> Fitted lifecycle shared by all transformers.
type state uint8

const (
	unfitted state = iota
	fitted
)
