package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itsnirmal/cheatcodeapp/internal/domain"
	"github.com/itsnirmal/cheatcodeapp/internal/outbox"
	platformevents "github.com/itsnirmal/cheatcodeapp/internal/platform/events"
)

// Repository provides Postgres-backed persistence for profiles, habits, and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `user_id, level, xp, updated_at`

const habitColumns = `habit_id, owner_id, name, streak, status, created_at, updated_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(&p.UserID, &p.Level, &p.XP, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanHabit(row pgx.Row) (*domain.Habit, error) {
	var rec domain.HabitRecord
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.Streak, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	habit, err := rec.Decode()
	if err != nil {
		return nil, err
	}
	return &habit, nil
}

// GetProfile returns the profile or nil when none exists.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1`, userID)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return profile, nil
}

// EnsureProfile inserts the starting profile unless one exists.
func (r *Repository) EnsureProfile(ctx context.Context, userID string) (*domain.Profile, bool, error) {
	start := domain.NewProfile(userID)
	if err := start.Validate(); err != nil {
		return nil, false, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`INSERT INTO profiles (user_id, level, xp) VALUES ($1,$2,$3)
         ON CONFLICT (user_id) DO NOTHING
         RETURNING `+profileColumns,
		start.UserID, start.Level, start.XP)
	profile, err := scanProfile(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		existing, getErr := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1`, userID))
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, tx.Commit(ctx)
	case err != nil:
		return nil, false, err
	}

	if err := insertProfileEvent(ctx, tx, *profile, platformevents.ProfileCreated, "created"); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return profile, true, nil
}

// UpdateProfile locks the profile row, applies fn, and writes the result in one transaction.
// Concurrent updates for the same user serialize on the row lock.
func (r *Repository) UpdateProfile(ctx context.Context, userID string, fn func(*domain.Profile) error) (*domain.Profile, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1 FOR UPDATE`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	next := *current
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.UserID = current.UserID
	if err := next.Validate(); err != nil {
		return nil, err
	}

	updated, err := scanProfile(tx.QueryRow(ctx,
		`UPDATE profiles SET level=$2, xp=$3, updated_at=NOW() WHERE user_id=$1 RETURNING `+profileColumns,
		next.UserID, next.Level, next.XP))
	if err != nil {
		return nil, err
	}

	if err := insertProfileEvent(ctx, tx, *updated, platformevents.ProfileUpdated, "updated"); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteProfile removes the profile row and records profile.deleted. It is not part of
// domain.ProfileRepository: the service never deletes profiles.
func (r *Repository) DeleteProfile(ctx context.Context, userID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	deleted, err := scanProfile(tx.QueryRow(ctx, `DELETE FROM profiles WHERE user_id=$1 RETURNING `+profileColumns, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tx.Commit(ctx)
		}
		return err
	}
	if err := insertProfileEvent(ctx, tx, *deleted, platformevents.ProfileDeleted, "deleted"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InsertHabitWithinCapacity locks the owner's profile row, counts slot-occupying habits,
// and inserts the habit only when a slot is free.
func (r *Repository) InsertHabitWithinCapacity(ctx context.Context, habit domain.Habit) (*domain.Habit, domain.Rejection, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, domain.RejectNone, err
	}
	defer tx.Rollback(ctx)

	var level int
	if err := tx.QueryRow(ctx, `SELECT level FROM profiles WHERE user_id=$1 FOR UPDATE`, habit.OwnerID).Scan(&level); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.RejectNoProfile, nil
		}
		return nil, domain.RejectNone, err
	}

	var used int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM habits WHERE owner_id=$1 AND status <> $2`,
		habit.OwnerID, string(domain.HabitStatusActivated)).Scan(&used); err != nil {
		return nil, domain.RejectNone, err
	}
	if used >= level {
		return nil, domain.RejectSlotLimit, nil
	}

	habit.ID = uuid.NewString()
	habit.Status = domain.StatusForStreak(habit.Streak)
	inserted, err := scanHabit(tx.QueryRow(ctx,
		`INSERT INTO habits (habit_id, owner_id, name, streak, status)
         VALUES ($1,$2,$3,$4,$5)
         RETURNING `+habitColumns,
		habit.ID, habit.OwnerID, habit.Name, habit.Streak, string(habit.Status)))
	if err != nil {
		return nil, domain.RejectNone, err
	}

	if err := insertHabitEvent(ctx, tx, *inserted, platformevents.HabitCreated, "created"); err != nil {
		return nil, domain.RejectNone, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.RejectNone, err
	}
	return inserted, domain.RejectNone, nil
}

// GetHabit returns the habit or nil when none exists.
func (r *Repository) GetHabit(ctx context.Context, habitID string) (*domain.Habit, error) {
	habit, err := scanHabit(r.pool.QueryRow(ctx, `SELECT `+habitColumns+` FROM habits WHERE habit_id=$1`, habitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return habit, nil
}

// ListHabitsByOwner returns the owner's habits ordered by creation time.
func (r *Repository) ListHabitsByOwner(ctx context.Context, ownerID string) ([]domain.Habit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE owner_id=$1 ORDER BY created_at, habit_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Habit, 0)
	for rows.Next() {
		habit, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *habit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateHabitStreak writes the streak/status pair; the last writer wins.
func (r *Repository) UpdateHabitStreak(ctx context.Context, habitID string, streak int, status domain.HabitStatus) (*domain.Habit, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	updated, err := scanHabit(tx.QueryRow(ctx,
		`UPDATE habits SET streak=$2, status=$3, updated_at=NOW() WHERE habit_id=$1 RETURNING `+habitColumns,
		habitID, streak, string(status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	if err := insertHabitEvent(ctx, tx, *updated, platformevents.HabitUpdated, "updated"); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteHabit removes the habit row and reports whether one existed.
func (r *Repository) DeleteHabit(ctx context.Context, habitID string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	deleted, err := scanHabit(tx.QueryRow(ctx, `DELETE FROM habits WHERE habit_id=$1 RETURNING `+habitColumns, habitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, tx.Commit(ctx)
		}
		return false, err
	}

	if err := insertHabitEvent(ctx, tx, *deleted, platformevents.HabitDeleted, "deleted"); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func insertHabitEvent(ctx context.Context, tx pgx.Tx, habit domain.Habit, eventType, op string) error {
	return insertOutbox(ctx, tx, habit.OwnerID, "habit", habit.ID, eventType, platformevents.HabitChanged{
		HabitID:    habit.ID,
		UserID:     habit.OwnerID,
		Name:       habit.Name,
		Streak:     habit.Streak,
		Status:     string(habit.Status),
		Op:         op,
		OccurredAt: habit.UpdatedAt,
	})
}

func insertProfileEvent(ctx context.Context, tx pgx.Tx, profile domain.Profile, eventType, op string) error {
	return insertOutbox(ctx, tx, profile.UserID, "profile", profile.UserID, eventType, platformevents.ProfileChanged{
		UserID:     profile.UserID,
		Level:      profile.Level,
		XP:         profile.XP,
		Op:         op,
		OccurredAt: profile.UpdatedAt,
	})
}

func insertOutbox(ctx context.Context, tx pgx.Tx, userID, aggregateType, aggregateID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		userID,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
	)
	return err
}

// EventMetadata describes how to route an outbox event. Every event is keyed by
// user id so one user's changes stay ordered within a partition.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

const (
	HabitTopic   = "habit_events"
	ProfileTopic = "profile_events"
)

var eventCatalog = map[string]EventMetadata{
	platformevents.HabitCreated:   {Topic: HabitTopic, SchemaSubject: outbox.ValueSubject(HabitTopic)},
	platformevents.HabitUpdated:   {Topic: HabitTopic, SchemaSubject: outbox.ValueSubject(HabitTopic)},
	platformevents.HabitDeleted:   {Topic: HabitTopic, SchemaSubject: outbox.ValueSubject(HabitTopic)},
	platformevents.ProfileCreated: {Topic: ProfileTopic, SchemaSubject: outbox.ValueSubject(ProfileTopic)},
	platformevents.ProfileUpdated: {Topic: ProfileTopic, SchemaSubject: outbox.ValueSubject(ProfileTopic)},
	platformevents.ProfileDeleted: {Topic: ProfileTopic, SchemaSubject: outbox.ValueSubject(ProfileTopic)},
}
