// Package events defines the change payloads written to the outbox and published to Kafka.
package events

import "time"

// HabitChanged is emitted whenever a habit row is created, updated, or deleted.
type HabitChanged struct {
	HabitID    string    `json:"habit_id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Streak     int       `json:"streak"`
	Status     string    `json:"status"`
	Op         string    `json:"op"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProfileChanged is emitted whenever a profile row is created, updated, or deleted.
type ProfileChanged struct {
	UserID     string    `json:"user_id"`
	Level      int       `json:"level"`
	XP         int       `json:"xp"`
	Op         string    `json:"op"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event types carried in the outbox and in the Kafka event_type header.
const (
	HabitCreated   = "habit.created"
	HabitUpdated   = "habit.updated"
	HabitDeleted   = "habit.deleted"
	ProfileCreated = "profile.created"
	ProfileUpdated = "profile.updated"
	ProfileDeleted = "profile.deleted"
)
