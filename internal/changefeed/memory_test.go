package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerDeliversOnlyToMatchingUser(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()

	ada, err := broker.Subscribe(ctx, "ada")
	require.NoError(t, err)
	defer ada.Close()
	bob, err := broker.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer bob.Close()

	change := Change{UserID: "ada", Kind: KindHabit, EntityID: "h1", Op: OpCreated, OccurredAt: time.Now()}
	require.NoError(t, broker.Publish(ctx, change))

	select {
	case got := <-ada.C():
		require.Equal(t, change, got)
	case <-time.After(time.Second):
		t.Fatal("expected change for ada")
	}

	select {
	case got := <-bob.C():
		t.Fatalf("unexpected change for bob: %+v", got)
	default:
	}
}

func TestMemoryBrokerCloseReleasesSubscription(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()

	sub, err := broker.Subscribe(ctx, "ada")
	require.NoError(t, err)
	require.Equal(t, "ada", sub.UserID())
	require.Equal(t, 1, broker.Subscribers("ada"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.Equal(t, 0, broker.Subscribers("ada"))

	_, open := <-sub.C()
	require.False(t, open)

	// Publishing after close must not panic.
	require.NoError(t, broker.Publish(ctx, Change{UserID: "ada", Kind: KindProfile}))
}

func TestMemoryBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()

	sub, err := broker.Subscribe(ctx, "ada")
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriptionBuffer*4; i++ {
			_ = broker.Publish(ctx, Change{UserID: "ada", Kind: KindHabit})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Len(t, sub.C(), subscriptionBuffer)
}
