// Package manualpush enforces the manual-push gate: ownership, a
// per-user cooldown between pushes, and a per-user daily push cap that
// resets at the first push after the user's configured day rolls over.
package manualpush

import (
	"context"
	"fmt"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/pkg/apierr"
)

// DefaultCooldown is the minimum spacing between two manual pushes by the
// same user.
const DefaultCooldown = 10 * time.Second

// DefaultDailyLimit is the number of manual pushes a user may make per day.
const DefaultDailyLimit = 20

// Gate enforces the manual-push preconditions against the catalogue's user
// state.
type Gate struct {
	store      catalogue.Store
	cooldown   time.Duration
	dailyLimit int
}

// Option configures a Gate at construction time.
type Option func(*Gate)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(g *Gate) { g.cooldown = d }
}

// WithDailyLimit overrides DefaultDailyLimit.
func WithDailyLimit(n int) Option {
	return func(g *Gate) { g.dailyLimit = n }
}

// New builds a Gate.
func New(store catalogue.Store, opts ...Option) *Gate {
	g := &Gate{store: store, cooldown: DefaultCooldown, dailyLimit: DefaultDailyLimit}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow checks and, if permitted, records one manual-push attempt by user
// against pipeline p at instant now in time zone tz. On success it persists
// the updated counters and returns nil; the caller is then clear to enqueue
// the orchestrator invocation.
func (g *Gate) Allow(ctx context.Context, user domain.User, p domain.Pipeline, now time.Time, tz *time.Location) error {
	if !user.Owns(p.OwnerUserID) {
		return apierr.Validation("user", fmt.Sprintf("user %d does not own pipeline %d", user.ID, p.ID))
	}

	if tz == nil {
		tz = time.UTC
	}
	today := now.In(tz).Format("2006-01-02")
	if user.ManualPushDate != today {
		user.ManualPushCount = 0
		user.ManualPushDate = today
	}

	if !user.ManualPushLastAt.IsZero() && now.Sub(user.ManualPushLastAt) < g.cooldown {
		return apierr.ThrottledErr("manual push attempted before the cooldown elapsed")
	}
	if user.ManualPushCount >= g.dailyLimit {
		return apierr.ThrottledErr("manual push daily limit reached")
	}

	user.ManualPushCount++
	user.ManualPushLastAt = now
	if err := g.store.UpdateUserManualPushState(ctx, user); err != nil {
		return fmt.Errorf("manualpush: persist push state for user %d: %w", user.ID, err)
	}
	return nil
}
