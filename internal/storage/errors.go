package storage

import "errors"

// ReplayError reports a failed buffer operation. Op names the operation
// and Err carries one of the sentinel errors below, possibly wrapped with
// more detail.
type ReplayError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *ReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap exposes the underlying error to errors.Is and errors.As
func (e *ReplayError) Unwrap() error {
	return e.Err
}

var (
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrInvalidCapacity      = errors.New("capacity must be positive")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrDegeneratePriorities = errors.New("degenerate priorities")
	ErrLengthMismatch       = errors.New("length mismatch")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrInvalidBeta          = errors.New("beta must be in [0, 1]")
	ErrNonFiniteError       = errors.New("td-error must be finite")
	ErrCorruptRecord        = errors.New("corrupt record")
	ErrVersionMismatch      = errors.New("record version mismatch")
)

// IsInsufficientData reports whether err means the buffer does not hold
// enough records yet. Training drivers usually skip the update step in
// that case instead of failing.
func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

func opError(op string, err error) error {
	return &ReplayError{Op: op, Err: err}
}
