package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrInvalidConfig        = errors.New("invalid server configuration")
	ErrDuplicateLoop        = errors.New("duplicate loop name")
	ErrLoopNotFound         = errors.New("loop not found")
)
