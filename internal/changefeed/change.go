// Package changefeed delivers per-user "something changed" notifications to store subscribers.
package changefeed

import (
	"context"
	"sync"
	"time"
)

// Kind names the store a change touched.
type Kind string

const (
	KindHabit   Kind = "habit"
	KindProfile Kind = "profile"
)

// Op names the kind of write.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Change is a notification that one entity owned by UserID was written.
// It carries no payload; subscribers re-read the stores.
type Change struct {
	UserID     string    `json:"user_id"`
	Kind       Kind      `json:"kind"`
	EntityID   string    `json:"entity_id"`
	Op         Op        `json:"op"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits changes.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Subscriber opens a subscription to one user's changes.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (*Subscription, error)
}

const subscriptionBuffer = 16

// Subscription is an owned handle on a stream of changes. Close must be called to release it.
type Subscription struct {
	userID  string
	ch      chan Change
	mu      sync.Mutex
	closed  bool
	release func()
}

func newSubscription(userID string, release func()) *Subscription {
	return &Subscription{
		userID:  userID,
		ch:      make(chan Change, subscriptionBuffer),
		release: release,
	}
}

// UserID returns the user the subscription follows.
func (s *Subscription) UserID() string {
	return s.userID
}

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan Change {
	return s.ch
}

// deliver hands the change to the subscriber without blocking. A full buffer already
// guarantees the subscriber will re-read, so the change is dropped.
func (s *Subscription) deliver(change Change) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- change:
		return true
	default:
		return false
	}
}

// Close stops delivery and releases the underlying resources. It is safe to call twice.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	if s.release != nil {
		s.release()
	}
	return nil
}
