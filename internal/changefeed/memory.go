package changefeed

import (
	"context"
	"sync"
)

// MemoryBroker fans changes out to in-process subscribers.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewMemoryBroker constructs an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*Subscription]struct{})}
}

// Publish implements Publisher.
func (b *MemoryBroker) Publish(_ context.Context, change Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[change.UserID] {
		sub.deliver(change)
	}
	return nil
}

// Subscribe implements Subscriber.
func (b *MemoryBroker) Subscribe(_ context.Context, userID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sub *Subscription
	sub = newSubscription(userID, func() { b.remove(userID, sub) })
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*Subscription]struct{})
	}
	b.subs[userID][sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBroker) remove(userID string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[userID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, userID)
		}
	}
}

// Subscribers reports how many subscriptions follow userID.
func (b *MemoryBroker) Subscribers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}
