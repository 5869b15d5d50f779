package loop

import "errors"

var (
	ErrTerminated        = errors.New("loop is terminated")
	ErrAlreadyRunning    = errors.New("loop is already running")
	ErrInvalidUpdateRate = errors.New("update rate must be positive")
	ErrInvalidTimeScale  = errors.New("time scale must be a finite value >= 0")
	ErrMissingName       = errors.New("loop name is required")
)
