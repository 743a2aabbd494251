package eudoxus

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVersion is returned when a blob carries a version tag this
	// package cannot read.
	ErrUnsupportedVersion = errors.New("eudoxus: unsupported version")
	// ErrCorruptData is returned for truncated, oversized or internally
	// inconsistent blobs.
	ErrCorruptData = errors.New("eudoxus: corrupt data")
	// ErrNotLoaded is returned when evaluating a name that has no registered
	// automaton.
	ErrNotLoaded = errors.New("eudoxus: automaton not loaded")
)

// FormatError describes why a blob was rejected. Kind is one of
// ErrUnsupportedVersion or ErrCorruptData.
type FormatError struct {
	Kind   error
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v at offset %d: %s", e.Kind, e.Offset, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Kind
}

func corrupt(offset int, format string, args ...any) error {
	return &FormatError{Kind: ErrCorruptData, Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
