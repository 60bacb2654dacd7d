package domain

import "errors"

// StoreError wraps a persistence fault with the store operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

var (
	ErrNotFound          = errors.New("poll not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidOption     = errors.New("invalid option index")
	ErrInvalidIdentifier = errors.New("invalid poll ID format")
)
