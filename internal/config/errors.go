package config

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNoLoops       = errors.New("at least one loop is required")
	ErrDuplicateLoop = errors.New("duplicate loop name")
)
