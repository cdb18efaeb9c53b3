package diffexp

import "fmt"

// The error taxonomy below mirrors the failure modes of the pipeline stages.
// All four types fail fast at the stage boundary where they are detected;
// per-gene numeric trouble inside a stage is instead handled locally (fall
// back, count in Stats) and never surfaces as one of these.

// DataError indicates malformed or degenerate input data, e.g. a sample
// column with zero total counts, or sample identifiers that do not match
// between a count matrix and its class labels.
type DataError struct{ Msg string }

func (e *DataError) Error() string { return "data error: " + e.Msg }

// DesignError indicates a statistically invalid experimental design, e.g.
// fewer than two classes with at least one sample each.
type DesignError struct{ Msg string }

func (e *DesignError) Error() string { return "design error: " + e.Msg }

// UsageError indicates that the caller invoked a test variant incompatible
// with the current class count, e.g. the exact test with three classes.
type UsageError struct{ Msg string }

func (e *UsageError) Error() string { return "usage error: " + e.Msg }

// ContrastError indicates malformed contrast coefficients, e.g. a vector
// that does not sum to zero.
type ContrastError struct{ Msg string }

func (e *ContrastError) Error() string { return "contrast error: " + e.Msg }

// NewDataError constructs a DataError from a format string.
func NewDataError(format string, args ...interface{}) error {
	return &DataError{Msg: fmt.Sprintf(format, args...)}
}

// NewDesignError constructs a DesignError from a format string.
func NewDesignError(format string, args ...interface{}) error {
	return &DesignError{Msg: fmt.Sprintf(format, args...)}
}

// NewUsageError constructs a UsageError from a format string.
func NewUsageError(format string, args ...interface{}) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// NewContrastError constructs a ContrastError from a format string.
func NewContrastError(format string, args ...interface{}) error {
	return &ContrastError{Msg: fmt.Sprintf(format, args...)}
}
