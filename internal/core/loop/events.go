package loop

import "time"

// Event types published on the loop's event bus.
const (
	EventStarted        = "loop.started"
	EventTerminated     = "loop.terminated"
	EventPaused         = "loop.paused"
	EventResumed        = "loop.resumed"
	EventRateSampled    = "loop.rate_sampled"
	EventRecipientFault = "loop.recipient_fault"
)

// RateSample is the payload of EventRateSampled.
type RateSample struct {
	Loop      string    `json:"loop"`
	Updates   int       `json:"updates"`
	Ticks     int64     `json:"ticks"`
	TimeScale float64   `json:"time_scale"`
	At        time.Time `json:"at"`
}

type FaultKind string

const (
	FaultUpdatable   FaultKind = "updatable"
	FaultTimedAction FaultKind = "timed_action"
	FaultRateSample  FaultKind = "rate_consumer"
)

// Fault describes a recovered panic raised by a tick recipient. It is the
// payload of EventRecipientFault.
type Fault struct {
	Kind      FaultKind `json:"kind"`
	Tick      int64     `json:"tick"`
	Recipient string    `json:"recipient,omitempty"`
	Handle    Handle    `json:"handle,omitempty"`
	Value     any       `json:"value"`
}
