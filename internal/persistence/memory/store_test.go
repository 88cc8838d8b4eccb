package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itsnirmal/cheatcodeapp/internal/changefeed"
	"github.com/itsnirmal/cheatcodeapp/internal/domain"
)

var (
	_ domain.ProfileRepository = (*Store)(nil)
	_ domain.HabitRepository   = (*Store)(nil)
)

func TestStoreTimestampsAreStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return fixed }))

	_, _, err := store.EnsureProfile(ctx, "ada")
	require.NoError(t, err)
	_, err = store.UpdateProfile(ctx, "ada", func(p *domain.Profile) error {
		p.Level = 3
		return nil
	})
	require.NoError(t, err)

	var ids []string
	for _, name := range []string{"c", "a", "b"} {
		habit, rejection, err := store.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: name})
		require.NoError(t, err)
		require.Equal(t, domain.RejectNone, rejection)
		ids = append(ids, habit.ID)
	}

	habits, err := store.ListHabitsByOwner(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, habits, 3)
	for i, habit := range habits {
		require.Equal(t, ids[i], habit.ID)
		if i > 0 {
			require.True(t, habit.CreatedAt.After(habits[i-1].CreatedAt))
		}
	}
}

func TestStorePublishesEveryWrite(t *testing.T) {
	ctx := context.Background()
	broker := changefeed.NewMemoryBroker()
	sub, err := broker.Subscribe(ctx, "ada")
	require.NoError(t, err)
	defer sub.Close()

	store := NewStore(WithPublisher(broker))

	_, _, err = store.EnsureProfile(ctx, "ada")
	require.NoError(t, err)
	habit, _, err := store.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: "read"})
	require.NoError(t, err)
	_, err = store.UpdateHabitStreak(ctx, habit.ID, 1, domain.HabitStatusInProgress)
	require.NoError(t, err)
	_, err = store.UpdateProfile(ctx, "ada", func(p *domain.Profile) error {
		p.XP = 10
		return nil
	})
	require.NoError(t, err)
	_, err = store.DeleteHabit(ctx, habit.ID)
	require.NoError(t, err)
	require.NoError(t, store.DeleteProfile(ctx, "ada"))

	// Writes that change nothing publish nothing.
	_, _, err = store.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: "read"})
	require.NoError(t, err)
	_, err = store.DeleteHabit(ctx, habit.ID)
	require.NoError(t, err)

	want := []struct {
		kind changefeed.Kind
		op   changefeed.Op
	}{
		{changefeed.KindProfile, changefeed.OpCreated},
		{changefeed.KindHabit, changefeed.OpCreated},
		{changefeed.KindHabit, changefeed.OpUpdated},
		{changefeed.KindProfile, changefeed.OpUpdated},
		{changefeed.KindHabit, changefeed.OpDeleted},
		{changefeed.KindProfile, changefeed.OpDeleted},
	}
	require.Len(t, sub.C(), len(want))
	for _, w := range want {
		got := <-sub.C()
		require.Equal(t, "ada", got.UserID)
		require.Equal(t, w.kind, got.Kind)
		require.Equal(t, w.op, got.Op)
	}
}

func TestStoreRejectsInvalidProfileUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, _, err := store.EnsureProfile(ctx, "ada")
	require.NoError(t, err)

	_, err = store.UpdateProfile(ctx, "ada", func(p *domain.Profile) error {
		p.XP = -5
		return nil
	})
	require.ErrorIs(t, err, domain.ErrDecode)

	profile, err := store.GetProfile(ctx, "ada")
	require.NoError(t, err)
	require.Equal(t, 0, profile.XP)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, _, err := store.EnsureProfile(ctx, "ada")
	require.NoError(t, err)

	profile, err := store.GetProfile(ctx, "ada")
	require.NoError(t, err)
	profile.XP = 99

	again, err := store.GetProfile(ctx, "ada")
	require.NoError(t, err)
	require.Equal(t, 0, again.XP)
}
