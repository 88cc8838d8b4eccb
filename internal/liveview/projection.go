// Package liveview keeps a per-user projection of habits and profile current with store changes.
package liveview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/changefeed"
	"github.com/itsnirmal/cheatcodeapp/internal/domain"
	"github.com/itsnirmal/cheatcodeapp/internal/observability"
)

// DefaultCelebrationWindow is how long LeveledUp stays true after a level increase.
const DefaultCelebrationWindow = 9 * time.Second

// ProfileReader reads profiles.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// HabitLister lists an owner's habits.
type HabitLister interface {
	ListHabitsByOwner(ctx context.Context, ownerID string) ([]domain.Habit, error)
}

// State is the derived, read-only view of one user.
type State struct {
	UserID string
	Habits []domain.Habit
	// Profile is nil when the user has no profile.
	Profile     *domain.Profile
	UsedSlots   int
	CanAddHabit bool
	LeveledUp   bool
	// CelebrationEndsAt is zero unless LeveledUp.
	CelebrationEndsAt time.Time
	Progress          domain.Progress
	// Version increases with every published state.
	Version uint64
}

// Filter returns the habits in the given category.
func (s State) Filter(category domain.Category) []domain.Habit {
	return domain.FilterHabits(s.Habits, category)
}

func derive(userID string, habits []domain.Habit, profile *domain.Profile) State {
	st := State{
		UserID:    userID,
		Habits:    habits,
		UsedSlots: domain.UsedSlots(habits),
	}
	if profile != nil {
		p := *profile
		st.Profile = &p
		st.CanAddHabit = st.UsedSlots < p.Capacity()
		st.Progress = p.Progress()
	}
	return st
}

// Option configures a Projection.
type Option func(*Projection)

// WithCelebrationWindow overrides DefaultCelebrationWindow.
func WithCelebrationWindow(d time.Duration) Option {
	return func(p *Projection) {
		if d > 0 {
			p.window = d
		}
	}
}

// WithLogger sets the projection logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Projection) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Projection opens live views over the profile and habit stores.
type Projection struct {
	profiles ProfileReader
	habits   HabitLister
	feed     changefeed.Subscriber
	window   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewProjection constructs a Projection.
func NewProjection(profiles ProfileReader, habits HabitLister, feed changefeed.Subscriber, opts ...Option) *Projection {
	p := &Projection{
		profiles: profiles,
		habits:   habits,
		feed:     feed,
		window:   DefaultCelebrationWindow,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Snapshot derives the current state once, without subscribing. LeveledUp is always false.
func (p *Projection) Snapshot(ctx context.Context, userID string) (State, error) {
	habits, profile, err := p.read(ctx, userID)
	if err != nil {
		return State{}, err
	}
	return derive(userID, habits, profile), nil
}

func (p *Projection) read(ctx context.Context, userID string) ([]domain.Habit, *domain.Profile, error) {
	profile, err := p.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("read profile: %w", err)
	}
	habits, err := p.habits.ListHabitsByOwner(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list habits: %w", err)
	}
	return habits, profile, nil
}

// Open subscribes to the user's changes and returns a view holding the initial state.
// The view follows changes until Close is called or ctx is done; after ctx is done the
// state stays as last observed. Close must always be called.
func (p *Projection) Open(ctx context.Context, userID string) (*View, error) {
	sub, err := p.feed.Subscribe(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", userID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	v := &View{
		userID:     userID,
		projection: p,
		sub:        sub,
		updates:    make(chan State, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	v.celebration = newCelebration(p.window, p.now, v.celebrationEnded)

	// Subscribing before the first read means no write between the two is missed.
	if err := v.refresh(runCtx); err != nil {
		cancel()
		_ = sub.Close()
		close(v.done)
		return nil, err
	}

	observability.ViewOpened()
	go v.run(runCtx)
	return v, nil
}

// View is an open, continuously updated projection for one user.
type View struct {
	userID      string
	projection  *Projection
	sub         *changefeed.Subscription
	celebration *celebration

	mu        sync.Mutex
	state     State
	lastLevel int
	version   uint64
	closed    bool
	updates   chan State

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// State returns the latest derived state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Updates delivers new states. Slow readers only see the latest one; the channel is
// closed by Close.
func (v *View) Updates() <-chan State {
	return v.updates
}

// Close stops following changes and releases the subscription.
func (v *View) Close() error {
	var err error
	v.closeOnce.Do(func() {
		v.cancel()
		err = v.sub.Close()
		<-v.done
		v.celebration.stop()

		v.mu.Lock()
		v.closed = true
		close(v.updates)
		v.mu.Unlock()

		observability.ViewClosed()
	})
	return err
}

func (v *View) run(ctx context.Context) {
	defer close(v.done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-v.sub.C():
			if !ok {
				return
			}
			if !v.drain() {
				return
			}
			if err := v.refresh(ctx); err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return
				}
				v.projection.logger.Warn("live view refresh failed",
					zap.String("user_id", v.userID),
					zap.Error(err))
			}
		}
	}
}

// drain coalesces queued notifications into one refresh. It reports false once the
// subscription is closed.
func (v *View) drain() bool {
	for {
		select {
		case _, ok := <-v.sub.C():
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

func (v *View) refresh(ctx context.Context) error {
	habits, profile, err := v.projection.read(ctx, v.userID)
	if err != nil {
		observability.RecordViewRefresh(false)
		return err
	}
	observability.RecordViewRefresh(true)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}

	if profile != nil {
		if v.lastLevel > 0 && profile.Level > v.lastLevel {
			v.celebration.trigger()
		}
		v.lastLevel = profile.Level
	} else {
		v.lastLevel = 0
	}

	next := derive(v.userID, habits, profile)
	v.publishLocked(next)
	return nil
}

func (v *View) celebrationEnded() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.publishLocked(v.state)
}

// publishLocked stamps the celebration status and version onto st and hands it to readers.
func (v *View) publishLocked(st State) {
	active, endsAt := v.celebration.status()
	st.LeveledUp = active
	st.CelebrationEndsAt = time.Time{}
	if active {
		st.CelebrationEndsAt = endsAt
	}
	v.version++
	st.Version = v.version
	v.state = st

	select {
	case v.updates <- st:
	default:
		select {
		case <-v.updates:
		default:
		}
		select {
		case v.updates <- st:
		default:
		}
	}
}
