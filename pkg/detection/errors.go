package detection

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotFound is returned when a model file is missing.
	ErrModelNotFound = errors.New("detection: model file not found")

	// ErrEmptyFrame is returned when a frame carries no decodable image.
	ErrEmptyFrame = errors.New("detection: empty frame")
)

// InferenceError wraps a per-frame model failure.
type InferenceError struct {
	Model string
	Err   error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("detection [%s]: inference failed: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *InferenceError) Unwrap() error {
	return e.Err
}

// WrapInference wraps err with model context. Nil stays nil.
func WrapInference(model string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InferenceError
	if errors.As(err, &ie) {
		return err
	}
	return &InferenceError{Model: model, Err: err}
}
