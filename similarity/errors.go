package similarity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument signals a malformed search argument (e.g. negative maxCount).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDimensionMismatch signals vectors of different dimensionality within one call.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// DimensionMismatchError names the document whose dimensionality differs from the query.
type DimensionMismatchError struct {
	DocumentID int64
	Expected   int
	Actual     int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("similarity: %s: document %d has dim %d, want %d",
		ErrDimensionMismatch.Error(), e.DocumentID, e.Actual, e.Expected)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("similarity: %w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
