package schedstat

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable reports that the raw schedstat text could not be read.
	ErrSourceUnavailable = errors.New("schedstat source unavailable")
	// ErrMalformedRecord reports a field that should be an integer but is not.
	ErrMalformedRecord = errors.New("malformed schedstat record")
	// ErrInvalidInterval reports a non-positive elapsed time between snapshots.
	ErrInvalidInterval = errors.New("invalid sample interval")
)

// MalformedRecordError describes the offending line of a malformed record.
type MalformedRecordError struct {
	Line  int
	Text  string
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s at line %d: field %q: %v: %q", ErrMalformedRecord, e.Line, e.Field, e.Err, e.Text)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// Is matches ErrMalformedRecord so callers can test with errors.Is.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}
