package bus

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var ErrNilHandler = errors.New("event handler is nil")

// wildcard is the internal routing key for SubscribeAll.
const wildcard = "*"

type simpleEvent struct {
	typeStr string
	source  string
	ts      time.Time
	data    any
}

func (e simpleEvent) Type() string         { return e.typeStr }
func (e simpleEvent) Source() string       { return e.source }
func (e simpleEvent) Timestamp() time.Time { return e.ts }
func (e simpleEvent) Data() any            { return e.data }

// NewEvent creates a simple Event implementation stamped with time.Now.
func NewEvent(typ, src string, data any) Event {
	return simpleEvent{typeStr: typ, source: src, ts: time.Now(), data: data}
}

// NewEventAt creates an Event with an explicit timestamp.
func NewEventAt(typ, src string, data any, ts time.Time) Event {
	return simpleEvent{typeStr: typ, source: src, ts: ts, data: data}
}

type subscription struct {
	id        string
	eventType string
	handler   EventHandler
	active    atomic.Bool
	bus       *inMemoryBus
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) EventType() string { return s.eventType }
func (s *subscription) IsActive() bool    { return s.active.Load() }
func (s *subscription) Cancel() error {
	if s.active.Swap(false) {
		s.bus.remove(s)
	}
	return nil
}

// inMemoryBus keeps handlers per event type as slices in subscription order.
type inMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]*subscription
}

// New creates a new EventBus instance.
func New() EventBus {
	return &inMemoryBus{
		handlers: make(map[string][]*subscription),
	}
}

func (b *inMemoryBus) Publish(event Event) error {
	if event == nil {
		return nil
	}

	b.mu.RLock()
	typed := b.handlers[event.Type()]
	all := b.handlers[wildcard]
	subs := make([]*subscription, 0, len(typed)+len(all))
	subs = append(subs, typed...)
	subs = append(subs, all...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		if err := s.handler(event); err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}

func (b *inMemoryBus) PublishAsync(event Event) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- b.Publish(event)
		close(ch)
	}()
	return ch
}

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	if eventType == "" || eventType == wildcard {
		return b.add(wildcard, "", handler)
	}
	return b.add(eventType, eventType, handler)
}

func (b *inMemoryBus) SubscribeAll(handler EventHandler) (Subscription, error) {
	return b.add(wildcard, "", handler)
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) Subscribers(eventType string) int {
	if eventType == "" {
		eventType = wildcard
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

func (b *inMemoryBus) add(key, eventType string, handler EventHandler) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		handler:   handler,
		bus:       b,
	}
	s.active.Store(true)
	b.handlers[key] = append(b.handlers[key], s)
	return s, nil
}

func (b *inMemoryBus) remove(s *subscription) {
	key := s.eventType
	if key == "" {
		key = wildcard
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[key]
	for i, cur := range subs {
		if cur == s {
			subs = slices.Delete(subs, i, i+1)
			if len(subs) == 0 {
				delete(b.handlers, key)
			} else {
				b.handlers[key] = subs
			}
			return
		}
	}
}
