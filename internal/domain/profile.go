package domain

import (
	"fmt"
	"strings"
	"time"
)

// Profile holds a user's progression state.
type Profile struct {
	UserID    string
	Level     int
	XP        int
	UpdatedAt time.Time
}

// NewProfile returns the starting profile assigned on first sign-in.
func NewProfile(userID string) Profile {
	return Profile{UserID: userID, Level: 1, XP: 0}
}

// Capacity is the number of slots the profile grants.
func (p Profile) Capacity() int {
	return p.Level
}

// Progress describes how far the profile is from the next level.
type Progress struct {
	Threshold int
	Needed    int
}

// Progress computes the XP threshold of the current level and what remains to reach it.
func (p Profile) Progress() Progress {
	threshold := Threshold(p.Level)
	return Progress{Threshold: threshold, Needed: max(0, threshold-p.XP)}
}

// Validate rejects profiles a store must never hand back.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("%w: profile user id is empty", ErrDecode)
	}
	if p.Level < 1 {
		return fmt.Errorf("%w: profile %s has level %d", ErrDecode, p.UserID, p.Level)
	}
	if p.XP < 0 {
		return fmt.Errorf("%w: profile %s has negative xp %d", ErrDecode, p.UserID, p.XP)
	}
	return nil
}
