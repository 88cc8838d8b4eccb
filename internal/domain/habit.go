package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActivationStreak is the streak length at which a habit stops occupying a slot.
const ActivationStreak = 30

// HabitStatus is derived from the streak and persisted alongside it.
type HabitStatus string

const (
	HabitStatusNotActivated HabitStatus = "not_activated"
	HabitStatusInProgress   HabitStatus = "in_progress"
	HabitStatusActivated    HabitStatus = "activated"
)

// StatusForStreak maps a streak length onto its status.
func StatusForStreak(streak int) HabitStatus {
	switch {
	case streak >= ActivationStreak:
		return HabitStatusActivated
	case streak > 0:
		return HabitStatusInProgress
	default:
		return HabitStatusNotActivated
	}
}

// ParseHabitStatus converts a stored status string into a HabitStatus.
func ParseHabitStatus(value string) (HabitStatus, error) {
	switch status := HabitStatus(value); status {
	case HabitStatusNotActivated, HabitStatusInProgress, HabitStatusActivated:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown habit status %q", ErrDecode, value)
	}
}

// Habit is a single tracked habit owned by one user.
type Habit struct {
	ID        string
	OwnerID   string
	Name      string
	Streak    int
	Status    HabitStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OccupiesSlot reports whether the habit counts against the owner's capacity.
func (h Habit) OccupiesSlot() bool {
	return h.Status != HabitStatusActivated
}

// HabitRecord is the untyped shape a store reads back before validation.
type HabitRecord struct {
	ID        string
	OwnerID   string
	Name      string
	Streak    int
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode validates the record and produces a Habit.
func (r HabitRecord) Decode() (Habit, error) {
	if strings.TrimSpace(r.ID) == "" {
		return Habit{}, fmt.Errorf("%w: habit id is empty", ErrDecode)
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return Habit{}, fmt.Errorf("%w: habit %s has no owner", ErrDecode, r.ID)
	}
	if strings.TrimSpace(r.Name) == "" {
		return Habit{}, fmt.Errorf("%w: habit %s has an empty name", ErrDecode, r.ID)
	}
	if r.Streak < 0 {
		return Habit{}, fmt.Errorf("%w: habit %s has negative streak %d", ErrDecode, r.ID, r.Streak)
	}
	status, err := ParseHabitStatus(r.Status)
	if err != nil {
		return Habit{}, err
	}
	if expected := StatusForStreak(r.Streak); status != expected {
		return Habit{}, fmt.Errorf("%w: habit %s has status %s for streak %d", ErrDecode, r.ID, status, r.Streak)
	}
	return Habit{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Streak:    r.Streak,
		Status:    status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// ErrUnknownCategory is returned for an unsupported status filter.
var ErrUnknownCategory = errors.New("unknown habit category")

// Category selects a subset of habits by status.
type Category string

const (
	CategoryAll          Category = "all"
	CategoryActivated    Category = "activated"
	CategoryInProgress   Category = "in-progress"
	CategoryNotActivated Category = "not-activated"
)

// ParseCategory accepts the filter names used by clients; empty means all.
func ParseCategory(value string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(value))); c {
	case "":
		return CategoryAll, nil
	case CategoryAll, CategoryActivated, CategoryInProgress, CategoryNotActivated:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, value)
	}
}

// Matches reports whether the habit belongs to the category.
func (c Category) Matches(h Habit) bool {
	switch c {
	case CategoryActivated:
		return h.Status == HabitStatusActivated
	case CategoryInProgress:
		return h.Status == HabitStatusInProgress
	case CategoryNotActivated:
		return h.Status == HabitStatusNotActivated
	default:
		return true
	}
}

// FilterHabits returns the habits matching the category, preserving order.
func FilterHabits(habits []Habit, category Category) []Habit {
	out := make([]Habit, 0, len(habits))
	for _, h := range habits {
		if category.Matches(h) {
			out = append(out, h)
		}
	}
	return out
}

// UsedSlots counts habits that occupy a slot.
func UsedSlots(habits []Habit) int {
	used := 0
	for _, h := range habits {
		if h.OccupiesSlot() {
			used++
		}
	}
	return used
}
