package api

import (
	"time"

	"github.com/itsnirmal/cheatcodeapp/internal/domain"
	"github.com/itsnirmal/cheatcodeapp/internal/liveview"
)

// CreateHabitRequest is the payload for POST /v1/habits.
type CreateHabitRequest struct {
	Name string `json:"name"`
}

// HabitView is the wire shape of a habit.
type HabitView struct {
	HabitID   string    `json:"habit_id"`
	Name      string    `json:"name"`
	Streak    int       `json:"streak"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressView describes distance to the next level.
type ProgressView struct {
	Threshold int `json:"threshold"`
	Needed    int `json:"needed"`
}

// ProfileView is the wire shape of a profile.
type ProfileView struct {
	UserID    string       `json:"user_id"`
	Level     int          `json:"level"`
	XP        int          `json:"xp"`
	Slots     int          `json:"slots"`
	Progress  ProgressView `json:"progress"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SessionResponse answers POST /v1/session.
type SessionResponse struct {
	Profile ProfileView `json:"profile"`
	Name    string      `json:"name,omitempty"`
	Created bool        `json:"created"`
}

// ListHabitsResponse packages list results.
type ListHabitsResponse struct {
	Items []HabitView `json:"items"`
}

// IncrementResponse answers POST /v1/habits/{id}/increment. Profile is omitted when the
// owner's profile no longer exists.
type IncrementResponse struct {
	Habit     HabitView    `json:"habit"`
	Profile   *ProfileView `json:"profile,omitempty"`
	LeveledUp bool         `json:"leveled_up"`
}

// StateView is the wire shape of the live projection.
type StateView struct {
	UserID            string       `json:"user_id"`
	Category          string       `json:"category"`
	Habits            []HabitView  `json:"habits"`
	Profile           *ProfileView `json:"profile"`
	UsedSlots         int          `json:"used_slots"`
	CanAddHabit       bool         `json:"can_add_habit"`
	LeveledUp         bool         `json:"leveled_up"`
	CelebrationEndsAt *time.Time   `json:"celebration_ends_at,omitempty"`
	Version           uint64       `json:"version"`
}

func toHabitView(h domain.Habit) HabitView {
	return HabitView{
		HabitID:   h.ID,
		Name:      h.Name,
		Streak:    h.Streak,
		Status:    string(h.Status),
		CreatedAt: h.CreatedAt,
		UpdatedAt: h.UpdatedAt,
	}
}

func toHabitViews(habits []domain.Habit) []HabitView {
	out := make([]HabitView, 0, len(habits))
	for _, h := range habits {
		out = append(out, toHabitView(h))
	}
	return out
}

func toProfileView(p domain.Profile) ProfileView {
	progress := p.Progress()
	return ProfileView{
		UserID:    p.UserID,
		Level:     p.Level,
		XP:        p.XP,
		Slots:     p.Capacity(),
		Progress:  ProgressView{Threshold: progress.Threshold, Needed: progress.Needed},
		UpdatedAt: p.UpdatedAt,
	}
}

// toStateView filters habits by category; slot counts always cover every habit.
func toStateView(st liveview.State, category domain.Category) StateView {
	view := StateView{
		UserID:      st.UserID,
		Category:    string(category),
		Habits:      toHabitViews(st.Filter(category)),
		UsedSlots:   st.UsedSlots,
		CanAddHabit: st.CanAddHabit,
		LeveledUp:   st.LeveledUp,
		Version:     st.Version,
	}
	if st.Profile != nil {
		profile := toProfileView(*st.Profile)
		view.Profile = &profile
	}
	if st.LeveledUp {
		ends := st.CelebrationEndsAt
		view.CelebrationEndsAt = &ends
	}
	return view
}
