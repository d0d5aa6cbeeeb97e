package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNoInputs       = errors.New("operator has no input")
	ErrNoOutputs      = errors.New("operator has no output")
	ErrEmptyInput     = errors.New("no photo in input")
	ErrIncomplete     = errors.New("photo is not complete")
	ErrAborted        = errors.New("aborted")
	ErrAlreadyRunning = errors.New("operator is already running")
	ErrInputsNotReady = errors.New("inputs are not up to date")
	ErrNoSignal       = errors.New("worker finished without a terminal signal")
	ErrFailed         = errors.New("worker failed")
	ErrClosed         = errors.New("operator is closed")
)

// ProcessingError is a failure attributed to one photo.
type ProcessingError struct {
	Identity string
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Identity, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
