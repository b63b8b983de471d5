package automation

import "errors"

// ErrNotFound is returned by stores when a referenced record does not exist
var ErrNotFound = errors.New("record not found")

const missingStepMessage = "Missing step reference"

type transientError struct {
	err error
}

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() error   { return e.err }
func (e *transientError) Temporary() bool { return true }

// Transient marks err as retryable. The error message is unchanged.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether any error in err's chain declares itself
// temporary.
func IsTransient(err error) bool {
	var temp interface{ Temporary() bool }
	return errors.As(err, &temp) && temp.Temporary()
}
