// Package events resolves which XP event applies to an attempt and manages event lifecycles.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

// ErrInvalidEvent is returned when an event fails validation.
var ErrInvalidEvent = models.ErrInvalidEvent

// Source tells which precedence tier produced the resolved event.
type Source string

// Source constants, in precedence order.
const (
	SourceNone       Source = ""
	SourceUser       Source = "user"
	SourceGlobal     Source = "global"
	SourceAssignment Source = "assignment"
)

// Store is the read side the resolver needs.
type Store interface {
	FindLive(ctx context.Context, userID uint, now time.Time) ([]models.XPEvent, error)
	FindAssignedLive(ctx context.Context, userID uint, now time.Time) ([]models.XPEvent, error)
}

// Candidates are the events that may apply to a user.
// Direct holds user-specific and global events; Assigned holds events reached through enrollment.
type Candidates struct {
	Direct   []models.XPEvent
	Assigned []models.XPEvent
}

// Resolved is the single event that applies to an attempt, if any.
type Resolved struct {
	Event  *models.XPEvent `json:"event,omitempty"`
	Source Source          `json:"source,omitempty"`
}

// Multiplier returns the resolved multiplier type, MultiplierNone when nothing applies.
func (r Resolved) Multiplier() models.MultiplierType {
	if r.Event == nil {
		return models.MultiplierNone
	}
	return r.Event.MultiplierType
}

// Found reports whether an event applies.
func (r Resolved) Found() bool {
	return r.Event != nil
}

type tier struct {
	source Source
	pool   func(c Candidates) []models.XPEvent
	match  func(e *models.XPEvent, userID uint) bool
}

// precedence is the fixed resolution order. The first tier with a live match wins.
var precedence = []tier{
	{
		source: SourceUser,
		pool:   func(c Candidates) []models.XPEvent { return c.Direct },
		match: func(e *models.XPEvent, userID uint) bool {
			return e.TargetType == models.TargetUserSpecific && e.TargetUserID != nil && *e.TargetUserID == userID
		},
	},
	{
		source: SourceGlobal,
		pool:   func(c Candidates) []models.XPEvent { return c.Direct },
		match: func(e *models.XPEvent, _ uint) bool {
			return e.TargetType == models.TargetAll && e.TargetUserID == nil
		},
	},
	{
		source: SourceAssignment,
		pool:   func(c Candidates) []models.XPEvent { return c.Assigned },
		match:  func(_ *models.XPEvent, _ uint) bool { return true },
	},
}

// Resolve picks the event that applies to userID at now.
// Within a tier 3x beats 2x, then the lower id wins so the result is stable.
func Resolve(userID uint, now time.Time, c Candidates) Resolved {
	for _, t := range precedence {
		var best *models.XPEvent
		pool := t.pool(c)
		for i := range pool {
			e := &pool[i]
			if !e.LiveAt(now) || e.MultiplierType.Rank() == 0 || !t.match(e, userID) {
				continue
			}
			if best == nil || better(e, best) {
				best = e
			}
		}
		if best != nil {
			picked := *best
			return Resolved{Event: &picked, Source: t.source}
		}
	}
	return Resolved{}
}

func better(a, b *models.XPEvent) bool {
	if a.MultiplierType.Rank() != b.MultiplierType.Rank() {
		return a.MultiplierType.Rank() > b.MultiplierType.Rank()
	}
	return a.ID < b.ID
}

// ResolveActive loads the candidates for userID from store and resolves them.
func ResolveActive(ctx context.Context, store Store, userID uint, now time.Time) (Resolved, error) {
	direct, err := store.FindLive(ctx, userID, now)
	if err != nil {
		return Resolved{}, fmt.Errorf("failed to load live events: %w", err)
	}

	assigned, err := store.FindAssignedLive(ctx, userID, now)
	if err != nil {
		return Resolved{}, fmt.Errorf("failed to load assigned events: %w", err)
	}

	return Resolve(userID, now, Candidates{Direct: direct, Assigned: assigned}), nil
}
