//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/itsnirmal/cheatcodeapp/internal/domain"
	platformevents "github.com/itsnirmal/cheatcodeapp/internal/platform/events"
)

func setupRepository(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("habits"),
		postgrescontainer.WithUsername("habits"),
		postgrescontainer.WithPassword("habits"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return NewRepository(pool), pool
}

func TestRepositoryEnforcesSlotCapacity(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	_, rejection, err := repo.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: "read"})
	require.NoError(t, err)
	require.Equal(t, domain.RejectNoProfile, rejection)

	profile, created, err := repo.EnsureProfile(ctx, "ada")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 1, profile.Level)

	_, created, err = repo.EnsureProfile(ctx, "ada")
	require.NoError(t, err)
	require.False(t, created)

	first, rejection, err := repo.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: "read"})
	require.NoError(t, err)
	require.Equal(t, domain.RejectNone, rejection)
	require.NotEmpty(t, first.ID)

	_, rejection, err = repo.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: "run"})
	require.NoError(t, err)
	require.Equal(t, domain.RejectSlotLimit, rejection)

	// Activated habits free their slot.
	_, err = repo.UpdateHabitStreak(ctx, first.ID, domain.ActivationStreak, domain.HabitStatusActivated)
	require.NoError(t, err)
	_, rejection, err = repo.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: "run"})
	require.NoError(t, err)
	require.Equal(t, domain.RejectNone, rejection)
}

func TestRepositoryConcurrentCreatesRespectCapacity(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	_, _, err := repo.EnsureProfile(ctx, "ada")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, rejection, err := repo.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: "habit"})
			assert.NoError(t, err)
			if rejection == domain.RejectNone {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, accepted)
	habits, err := repo.ListHabitsByOwner(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, habits, 1)
}

func TestRepositoryConcurrentAwardsAreNotLost(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)
	engine := domain.NewLevelingEngine(repo, nil)

	_, _, err := repo.EnsureProfile(ctx, "ada")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.AwardXP(ctx, "ada", 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	profile, err := repo.GetProfile(ctx, "ada")
	require.NoError(t, err)
	// 200 XP: 150 to leave level 1, 50 left over.
	require.Equal(t, 2, profile.Level)
	require.Equal(t, 50, profile.XP)
}

func TestRepositoryUpdateProfileMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	updated, err := repo.UpdateProfile(ctx, "ghost", func(p *domain.Profile) error {
		p.XP = 10
		return nil
	})
	require.NoError(t, err)
	require.Nil(t, updated)

	profile, err := repo.GetProfile(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, profile)
}

func TestRepositoryListsInCreationOrderAndDeletes(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	_, _, err := repo.EnsureProfile(ctx, "ada")
	require.NoError(t, err)
	_, err = repo.UpdateProfile(ctx, "ada", func(p *domain.Profile) error {
		p.Level = 3
		return nil
	})
	require.NoError(t, err)

	names := []string{"read", "run", "write"}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		habit, rejection, err := repo.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: name})
		require.NoError(t, err)
		require.Equal(t, domain.RejectNone, rejection)
		ids = append(ids, habit.ID)
	}

	habits, err := repo.ListHabitsByOwner(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, habits, 3)
	for i, habit := range habits {
		require.Equal(t, names[i], habit.Name)
	}

	deleted, err := repo.DeleteHabit(ctx, ids[1])
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.DeleteHabit(ctx, ids[1])
	require.NoError(t, err)
	require.False(t, deleted)

	missing, err := repo.UpdateHabitStreak(ctx, ids[1], 1, domain.HabitStatusInProgress)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepositoryWritesOutboxEventsInOrder(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t)

	_, _, err := repo.EnsureProfile(ctx, "ada")
	require.NoError(t, err)
	habit, _, err := repo.InsertHabitWithinCapacity(ctx, domain.Habit{OwnerID: "ada", Name: "read"})
	require.NoError(t, err)
	_, err = repo.UpdateHabitStreak(ctx, habit.ID, 1, domain.HabitStatusInProgress)
	require.NoError(t, err)
	_, err = domain.NewLevelingEngine(repo, nil).AwardXP(ctx, "ada", domain.StreakXP)
	require.NoError(t, err)
	_, err = repo.DeleteHabit(ctx, habit.ID)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteProfile(ctx, "ada"))

	rows, err := pool.Query(ctx, `SELECT event_type, topic, partition_key FROM outbox ORDER BY event_id`)
	require.NoError(t, err)
	defer rows.Close()

	var events []string
	for rows.Next() {
		var eventType, topic, key string
		require.NoError(t, rows.Scan(&eventType, &topic, &key))
		require.Equal(t, "ada", key)
		require.Equal(t, eventCatalog[eventType].Topic, topic)
		events = append(events, eventType)
	}
	require.NoError(t, rows.Err())

	require.Equal(t, []string{
		platformevents.ProfileCreated,
		platformevents.HabitCreated,
		platformevents.HabitUpdated,
		platformevents.ProfileUpdated,
		platformevents.HabitDeleted,
		platformevents.ProfileDeleted,
	}, events)
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
		"../../../db/postgres/migrations/0002_outbox_dlq_retry.up.sql",
		"../../../db/postgres/migrations/0003_event_log.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
