package domain

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/observability"
)

const (
	// XPPerLevel scales the XP threshold of each level.
	XPPerLevel = 150
	// StreakXP is awarded for every streak increment.
	StreakXP = 10
)

// Threshold is the XP needed to leave the given level.
func Threshold(level int) int {
	return level * XPPerLevel
}

// Advance applies gain to (xp, level) and normalizes so that xp < Threshold(level).
// Several levels can be gained in one call.
func Advance(xp, level, gain int) (int, int) {
	if level < 1 {
		level = 1
	}
	xp += gain
	for xp >= Threshold(level) {
		xp -= Threshold(level)
		level++
	}
	return xp, level
}

// Award captures a profile before and after an XP grant.
type Award struct {
	Gain   int
	Before Profile
	After  Profile
}

// LeveledUp reports whether the award crossed at least one level.
func (a Award) LeveledUp() bool {
	return a.After.Level > a.Before.Level
}

// LevelingEngine applies XP awards atomically against the profile store.
type LevelingEngine struct {
	profiles ProfileRepository
	logger   *zap.Logger
}

// NewLevelingEngine constructs a LevelingEngine.
func NewLevelingEngine(profiles ProfileRepository, logger *zap.Logger) *LevelingEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LevelingEngine{profiles: profiles, logger: logger}
}

// AwardXP adds gain to the user's profile inside a single store transaction.
// A missing profile yields (nil, nil).
func (e *LevelingEngine) AwardXP(ctx context.Context, userID string, gain int) (*Award, error) {
	if gain < 0 {
		return nil, ErrNegativeGain
	}

	award := Award{Gain: gain}
	updated, err := e.profiles.UpdateProfile(ctx, userID, func(p *Profile) error {
		award.Before = *p
		p.XP, p.Level = Advance(p.XP, p.Level, gain)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("award xp to %s: %w", userID, err)
	}
	if updated == nil {
		e.logger.Debug("xp award skipped, profile missing", zap.String("user_id", userID))
		return nil, nil
	}
	award.After = *updated

	observability.RecordXPAwarded(gain)
	if award.LeveledUp() {
		observability.RecordLevelUp(award.After.Level - award.Before.Level)
		e.logger.Info("profile leveled up",
			zap.String("user_id", userID),
			zap.Int("from", award.Before.Level),
			zap.Int("to", award.After.Level))
	}
	return &award, nil
}
