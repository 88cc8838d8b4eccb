package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelPrefix prefixes the per-user Redis pub/sub channel.
const ChannelPrefix = "habits:changes:"

// Channel returns the Redis channel carrying userID's changes.
func Channel(userID string) string {
	return ChannelPrefix + userID
}

// RedisBroker publishes and subscribes to changes over Redis pub/sub, so every API
// replica sees writes made through any other.
type RedisBroker struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisBroker constructs a RedisBroker.
func NewRedisBroker(rdb *redis.Client, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{rdb: rdb, logger: logger}
}

// Publish implements Publisher.
func (b *RedisBroker) Publish(ctx context.Context, change Change) error {
	body, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel(change.UserID), body).Err()
}

// Subscribe implements Subscriber. The returned subscription owns a Redis pub/sub
// connection and a reader goroutine until closed.
func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, Channel(userID))

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(userID), err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	sub := newSubscription(userID, func() {
		cancel()
		_ = pubsub.Close()
		wg.Wait()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.listen(listenCtx, pubsub, sub)
	}()
	return sub, nil
}

func (b *RedisBroker) listen(ctx context.Context, pubsub *redis.PubSub, sub *Subscription) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				b.logger.Warn("dropping malformed change",
					zap.String("channel", msg.Channel),
					zap.String("user_id", sub.UserID()),
					zap.Error(err))
				continue
			}
			if change.UserID != sub.UserID() {
				b.logger.Warn("dropping change for another user",
					zap.String("channel", msg.Channel),
					zap.String("user_id", sub.UserID()),
					zap.String("change_user_id", change.UserID))
				continue
			}
			sub.deliver(change)
		}
	}
}
