package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type names what happened.
type Type string

const (
	OrderExecuted  Type = "order.executed"
	SignedIn       Type = "auth.signed_in"
	SignedOut      Type = "auth.signed_out"
	ProfileUpdated Type = "profile.updated"
)

// Event is a state change concerning one user.
type Event struct {
	Type    Type        `json:"type"`
	UserID  uuid.UUID   `json:"userId"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// New creates an event stamped with the current time.
func New(t Type, userID uuid.UUID, payload interface{}) Event {
	return Event{Type: t, UserID: userID, Payload: payload, At: time.Now().UTC()}
}

// Publisher is implemented by anything events can be handed to.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Sink forwards events to a system outside the process.
type Sink interface {
	Write(ctx context.Context, e Event) error
	Close() error
}

// Bus fans events out to in-process subscribers of the event's user and to
// every configured sink. Publish never blocks on a slow subscriber: when a
// subscriber's buffer is full the event is dropped for that subscriber.
type Bus struct {
	logger *zap.Logger
	buffer int
	sinks  []Sink

	mu     sync.RWMutex
	nextID int
	subs   map[uuid.UUID]map[int]chan Event
}

var _ Publisher = (*Bus)(nil)

func NewBus(buffer int, logger *zap.Logger, sinks ...Sink) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		logger: logger.Named("events"),
		buffer: buffer,
		sinks:  sinks,
		subs:   make(map[uuid.UUID]map[int]chan Event),
	}
}

// Subscribe returns a channel receiving the user's events and a function that
// ends the subscription and closes the channel. The cancel function is safe to
// call more than once.
func (b *Bus) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan Event)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers e to the user's subscribers and writes it to every sink.
// Sink failures are logged.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	for _, ch := range b.subs[e.UserID] {
		select {
		case ch <- e:
		default:
			b.logger.Warn("Subscriber buffer full, dropping event",
				zap.String("type", string(e.Type)), zap.Stringer("user", e.UserID))
		}
	}
	b.mu.RUnlock()

	for _, sink := range b.sinks {
		if err := sink.Write(ctx, e); err != nil {
			b.logger.Error("Failed to write event to sink", zap.String("type", string(e.Type)), zap.Error(err))
		}
	}
}

// Subscribers returns the number of open subscriptions for a user.
func (b *Bus) Subscribers(userID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// Close closes every sink.
func (b *Bus) Close() error {
	var first error
	for _, sink := range b.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
