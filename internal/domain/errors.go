package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedEventKind = errors.New("unsupported event kind")
	ErrNarrativeNotFound    = errors.New("narrative not found")
)

// UnsupportedEventKindError reports an upstream notification type (or version) that has no
// Event variant.
type UnsupportedEventKindError struct {
	Type    string
	Version string
}

func (e *UnsupportedEventKindError) Error() string {
	return fmt.Sprintf("unsupported event kind %q (version %q)", e.Type, e.Version)
}

func (e *UnsupportedEventKindError) Is(target error) bool {
	return target == ErrUnsupportedEventKind
}

// FieldParseError reports a required wire field that could not be coerced.
type FieldParseError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldParseError) Error() string {
	return fmt.Sprintf("failed to parse field %q (value %q): %v", e.Field, e.Value, e.Err)
}

func (e *FieldParseError) Unwrap() error {
	return e.Err
}
