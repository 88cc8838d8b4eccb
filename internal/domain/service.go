// Package domain defines the business logic for the habit service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/observability"
)

var (
	// ErrNegativeGain is returned when an XP award is below zero.
	ErrNegativeGain = errors.New("xp gain must not be negative")
	// ErrProfileNotFound is returned when a profile lookup finds nothing.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrDecode wraps records that fail validation at the store boundary.
	ErrDecode = errors.New("invalid stored record")
)

// Rejection explains why a habit was not created. The zero value means accepted.
type Rejection string

const (
	RejectNone      Rejection = ""
	RejectEmptyName Rejection = "empty_name"
	RejectSlotLimit Rejection = "slot_limit"
	RejectNoProfile Rejection = "no_profile"
)

// ProfileRepository captures profile persistence.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// EnsureProfile creates the starting profile unless one exists; the bool reports creation.
	EnsureProfile(ctx context.Context, userID string) (*Profile, bool, error)
	// UpdateProfile runs fn against the locked profile and persists the result.
	// It returns (nil, nil) when the profile does not exist.
	UpdateProfile(ctx context.Context, userID string, fn func(*Profile) error) (*Profile, error)
}

// HabitRepository captures habit persistence.
type HabitRepository interface {
	// InsertHabitWithinCapacity checks the owner's profile and free slots and inserts
	// the habit in one atomic step. The store assigns ID and timestamps.
	InsertHabitWithinCapacity(ctx context.Context, habit Habit) (*Habit, Rejection, error)
	GetHabit(ctx context.Context, habitID string) (*Habit, error)
	ListHabitsByOwner(ctx context.Context, ownerID string) ([]Habit, error)
	// UpdateHabitStreak returns (nil, nil) when the habit does not exist.
	UpdateHabitStreak(ctx context.Context, habitID string, streak int, status HabitStatus) (*Habit, error)
	DeleteHabit(ctx context.Context, habitID string) (bool, error)
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger used by the service and its leveling engine.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service orchestrates the habit lifecycle.
type Service struct {
	profiles ProfileRepository
	habits   HabitRepository
	engine   *LevelingEngine
	logger   *zap.Logger
}

// NewService constructs a Service.
func NewService(profiles ProfileRepository, habits HabitRepository, opts ...Option) *Service {
	s := &Service{profiles: profiles, habits: habits, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = NewLevelingEngine(profiles, s.logger)
	return s
}

// Engine exposes the leveling engine.
func (s *Service) Engine() *LevelingEngine {
	return s.engine
}

// SignIn creates the starting profile on first sign-in and returns the stored profile.
func (s *Service) SignIn(ctx context.Context, userID string) (*Profile, bool, error) {
	profile, created, err := s.profiles.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("ensure profile: %w", err)
	}
	if created {
		s.logger.Info("profile created", zap.String("user_id", userID))
	}
	return profile, created, nil
}

// GetProfile fetches the caller's profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

// ListHabits returns the caller's habits in the given category.
func (s *Service) ListHabits(ctx context.Context, userID string, category Category) ([]Habit, error) {
	habits, err := s.habits.ListHabitsByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FilterHabits(habits, category), nil
}

// CreateHabit adds a habit when the name is non-blank and a slot is free.
func (s *Service) CreateHabit(ctx context.Context, userID, name string) (*Habit, Rejection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		observability.RecordHabitRejected(string(RejectEmptyName))
		return nil, RejectEmptyName, nil
	}

	habit, rejection, err := s.habits.InsertHabitWithinCapacity(ctx, Habit{
		OwnerID: userID,
		Name:    name,
		Streak:  0,
		Status:  HabitStatusNotActivated,
	})
	if err != nil {
		return nil, RejectNone, fmt.Errorf("insert habit: %w", err)
	}
	if rejection != RejectNone {
		observability.RecordHabitRejected(string(rejection))
		s.logger.Debug("habit rejected", zap.String("user_id", userID), zap.String("reason", string(rejection)))
		return nil, rejection, nil
	}

	observability.RecordHabitCreated()
	return habit, RejectNone, nil
}

// IncrementResult is the outcome of a streak increment.
type IncrementResult struct {
	Habit Habit
	// Award is nil when the owner's profile no longer exists.
	Award *Award
}

// IncrementStreak bumps the streak of a habit owned by the caller and then awards StreakXP.
// The two writes are independent: when the award fails the streak stays updated and
// the returned result carries the habit alongside the error.
func (s *Service) IncrementStreak(ctx context.Context, userID, habitID string) (*IncrementResult, error) {
	habit, err := s.ownedHabit(ctx, userID, habitID)
	if err != nil || habit == nil {
		return nil, err
	}

	streak := habit.Streak + 1
	updated, err := s.habits.UpdateHabitStreak(ctx, habit.ID, streak, StatusForStreak(streak))
	if err != nil {
		return nil, fmt.Errorf("update streak: %w", err)
	}
	if updated == nil {
		return nil, nil
	}
	observability.RecordStreakIncrement(string(updated.Status))

	result := &IncrementResult{Habit: *updated}
	award, err := s.engine.AwardXP(ctx, updated.OwnerID, StreakXP)
	if err != nil {
		s.logger.Warn("streak updated but xp award failed",
			zap.String("habit_id", updated.ID),
			zap.String("user_id", updated.OwnerID),
			zap.Error(err))
		return result, err
	}
	result.Award = award
	return result, nil
}

// ResetStreak sets the streak back to zero. Capacity is not re-checked.
func (s *Service) ResetStreak(ctx context.Context, userID, habitID string) (*Habit, error) {
	habit, err := s.ownedHabit(ctx, userID, habitID)
	if err != nil || habit == nil {
		return nil, err
	}

	updated, err := s.habits.UpdateHabitStreak(ctx, habit.ID, 0, HabitStatusNotActivated)
	if err != nil {
		return nil, fmt.Errorf("reset streak: %w", err)
	}
	if updated != nil {
		observability.RecordStreakReset()
	}
	return updated, nil
}

// DeleteHabit removes a habit owned by the caller.
func (s *Service) DeleteHabit(ctx context.Context, userID, habitID string) error {
	habit, err := s.ownedHabit(ctx, userID, habitID)
	if err != nil || habit == nil {
		return err
	}

	deleted, err := s.habits.DeleteHabit(ctx, habit.ID)
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	if deleted {
		observability.RecordHabitDeleted()
	}
	return nil
}

// ownedHabit returns nil when the habit is missing or belongs to someone else.
func (s *Service) ownedHabit(ctx context.Context, userID, habitID string) (*Habit, error) {
	if strings.TrimSpace(habitID) == "" {
		return nil, nil
	}
	habit, err := s.habits.GetHabit(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	if habit == nil || habit.OwnerID != userID {
		return nil, nil
	}
	return habit, nil
}
