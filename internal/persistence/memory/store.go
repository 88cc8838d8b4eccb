// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/changefeed"
	"github.com/itsnirmal/cheatcodeapp/internal/domain"
)

// Option configures the Store.
type Option func(*Store)

// WithPublisher emits a change after every successful write.
func WithPublisher(publisher changefeed.Publisher) Option {
	return func(s *Store) {
		s.publisher = publisher
	}
}

// WithLogger sets the logger used to report publish failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store keeps profiles and habits in maps. Writes against one user's profile are
// serialized by a per-user lock; different users never contend on it.
type Store struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	habits   map[string]domain.Habit
	locks    map[string]*sync.Mutex
	lastTick time.Time

	publisher changefeed.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		profiles: make(map[string]domain.Profile),
		habits:   make(map[string]domain.Habit),
		locks:    make(map[string]*sync.Mutex),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// userLock returns the lock serializing writes that depend on userID's profile.
func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// tick returns a strictly increasing UTC timestamp. Callers hold s.mu.
func (s *Store) tick() time.Time {
	now := s.now().UTC()
	if !now.After(s.lastTick) {
		now = s.lastTick.Add(time.Nanosecond)
	}
	s.lastTick = now
	return now
}

func (s *Store) publish(ctx context.Context, userID string, kind changefeed.Kind, entityID string, op changefeed.Op, at time.Time) {
	if s.publisher == nil {
		return
	}
	change := changefeed.Change{UserID: userID, Kind: kind, EntityID: entityID, Op: op, OccurredAt: at}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Warn("change publish failed",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

// GetProfile implements domain.ProfileRepository.
func (s *Store) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

// EnsureProfile implements domain.ProfileRepository.
func (s *Store) EnsureProfile(ctx context.Context, userID string) (*domain.Profile, bool, error) {
	s.mu.Lock()
	if existing, ok := s.profiles[userID]; ok {
		s.mu.Unlock()
		return &existing, false, nil
	}
	profile := domain.NewProfile(userID)
	if err := profile.Validate(); err != nil {
		s.mu.Unlock()
		return nil, false, err
	}
	profile.UpdatedAt = s.tick()
	s.profiles[userID] = profile
	s.mu.Unlock()

	s.publish(ctx, userID, changefeed.KindProfile, userID, changefeed.OpCreated, profile.UpdatedAt)
	return &profile, true, nil
}

// UpdateProfile implements domain.ProfileRepository.
func (s *Store) UpdateProfile(ctx context.Context, userID string, fn func(*domain.Profile) error) (*domain.Profile, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	current, ok := s.profiles[userID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	next := current
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.UserID = current.UserID
	if err := next.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, stillThere := s.profiles[userID]; !stillThere {
		s.mu.Unlock()
		return nil, nil
	}
	next.UpdatedAt = s.tick()
	s.profiles[userID] = next
	s.mu.Unlock()

	s.publish(ctx, userID, changefeed.KindProfile, userID, changefeed.OpUpdated, next.UpdatedAt)
	return &next, nil
}

// DeleteProfile removes the profile. The service never deletes profiles; operators and
// tests use it to exercise the missing-profile paths.
func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	s.mu.Lock()
	_, ok := s.profiles[userID]
	delete(s.profiles, userID)
	at := s.tick()
	s.mu.Unlock()

	if ok {
		s.publish(ctx, userID, changefeed.KindProfile, userID, changefeed.OpDeleted, at)
	}
	return nil
}

// InsertHabitWithinCapacity implements domain.HabitRepository.
func (s *Store) InsertHabitWithinCapacity(ctx context.Context, habit domain.Habit) (*domain.Habit, domain.Rejection, error) {
	lock := s.userLock(habit.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	profile, ok := s.profiles[habit.OwnerID]
	if !ok {
		s.mu.Unlock()
		return nil, domain.RejectNoProfile, nil
	}
	used := 0
	for _, h := range s.habits {
		if h.OwnerID == habit.OwnerID && h.OccupiesSlot() {
			used++
		}
	}
	if used >= profile.Capacity() {
		s.mu.Unlock()
		return nil, domain.RejectSlotLimit, nil
	}

	habit.ID = uuid.NewString()
	habit.Status = domain.StatusForStreak(habit.Streak)
	habit.CreatedAt = s.tick()
	habit.UpdatedAt = habit.CreatedAt
	s.habits[habit.ID] = habit
	s.mu.Unlock()

	s.publish(ctx, habit.OwnerID, changefeed.KindHabit, habit.ID, changefeed.OpCreated, habit.CreatedAt)
	return &habit, domain.RejectNone, nil
}

// GetHabit implements domain.HabitRepository.
func (s *Store) GetHabit(_ context.Context, habitID string) (*domain.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	habit, ok := s.habits[habitID]
	if !ok {
		return nil, nil
	}
	return &habit, nil
}

// ListHabitsByOwner implements domain.HabitRepository, ordered by creation time.
func (s *Store) ListHabitsByOwner(_ context.Context, ownerID string) ([]domain.Habit, error) {
	s.mu.Lock()
	out := make([]domain.Habit, 0)
	for _, h := range s.habits {
		if h.OwnerID == ownerID {
			out = append(out, h)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateHabitStreak implements domain.HabitRepository.
func (s *Store) UpdateHabitStreak(ctx context.Context, habitID string, streak int, status domain.HabitStatus) (*domain.Habit, error) {
	s.mu.Lock()
	habit, ok := s.habits[habitID]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	habit.Streak = streak
	habit.Status = status
	habit.UpdatedAt = s.tick()
	s.habits[habitID] = habit
	s.mu.Unlock()

	s.publish(ctx, habit.OwnerID, changefeed.KindHabit, habit.ID, changefeed.OpUpdated, habit.UpdatedAt)
	return &habit, nil
}

// DeleteHabit implements domain.HabitRepository.
func (s *Store) DeleteHabit(ctx context.Context, habitID string) (bool, error) {
	s.mu.Lock()
	habit, ok := s.habits[habitID]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.habits, habitID)
	at := s.tick()
	s.mu.Unlock()

	s.publish(ctx, habit.OwnerID, changefeed.KindHabit, habit.ID, changefeed.OpDeleted, at)
	return true, nil
}
