package abilities

import "errors"

var (
	ErrOnCooldown  = errors.New("ability is on cooldown")
	ErrNoScheduler = errors.New("scheduler is nil")
)
