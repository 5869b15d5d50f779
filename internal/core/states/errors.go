package states

import "errors"

var (
	ErrNoInitialState   = errors.New("definition has no initial state")
	ErrUnknownState     = errors.New("unknown state")
	ErrUnknownCondition = errors.New("unknown condition")
	ErrUnknownBehavior  = errors.New("unknown behavior")
	ErrUnknownHook      = errors.New("unknown hook")
)
