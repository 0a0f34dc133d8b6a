package manualpush

import (
	"context"
	"testing"
	"time"

	"github.com/originpress/inkwell/internal/catalogue/memory"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/pkg/apierr"
)

func TestGate_AllowsFirstPushOfTheDay(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	g := New(store)
	user := domain.User{ID: 1}
	p := domain.Pipeline{ID: 10, OwnerUserID: 1}

	if err := g.Allow(ctx, user, p, now, time.UTC); err != nil {
		t.Fatalf("Allow: %v", err)
	}
}

func TestGate_RejectsNonOwner(t *testing.T) {
	store := memory.New()
	g := New(store)
	user := domain.User{ID: 2}
	p := domain.Pipeline{ID: 10, OwnerUserID: 1}

	err := g.Allow(context.Background(), user, p, time.Now(), time.UTC)
	if err == nil || apierr.As(err) == nil || apierr.As(err).Kind != apierr.KindValidationFailed {
		t.Fatalf("Allow() = %v, want a validation error", err)
	}
}

func TestGate_AdminBypassesOwnership(t *testing.T) {
	store := memory.New()
	g := New(store)
	user := domain.User{ID: 2, IsAdmin: true}
	p := domain.Pipeline{ID: 10, OwnerUserID: 1}

	if err := g.Allow(context.Background(), user, p, time.Now(), time.UTC); err != nil {
		t.Fatalf("Allow: %v", err)
	}
}

func TestGate_RejectsWithinCooldown(t *testing.T) {
	store := memory.New()
	g := New(store, WithCooldown(10*time.Second))
	user := domain.User{ID: 1, ManualPushDate: "2026-08-01", ManualPushLastAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	p := domain.Pipeline{ID: 10, OwnerUserID: 1}

	now := time.Date(2026, 8, 1, 9, 0, 5, 0, time.UTC)
	err := g.Allow(context.Background(), user, p, now, time.UTC)
	if err == nil || apierr.As(err).Kind != apierr.KindThrottled {
		t.Fatalf("Allow() = %v, want a throttled error", err)
	}
}

func TestGate_RejectsAtDailyLimit(t *testing.T) {
	store := memory.New()
	g := New(store, WithDailyLimit(2), WithCooldown(0))
	user := domain.User{ID: 1, ManualPushDate: "2026-08-01", ManualPushCount: 2}
	p := domain.Pipeline{ID: 10, OwnerUserID: 1}

	err := g.Allow(context.Background(), user, p, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), time.UTC)
	if err == nil || apierr.As(err).Kind != apierr.KindThrottled {
		t.Fatalf("Allow() = %v, want a throttled error at the daily limit", err)
	}
}

func TestGate_ResetsCountOnDayRollover(t *testing.T) {
	store := memory.New()
	g := New(store, WithDailyLimit(1), WithCooldown(0))
	user := domain.User{ID: 1, ManualPushDate: "2026-07-31", ManualPushCount: 1}
	p := domain.Pipeline{ID: 10, OwnerUserID: 1}

	now := time.Date(2026, 8, 1, 0, 5, 0, 0, time.UTC)
	if err := g.Allow(context.Background(), user, p, now, time.UTC); err != nil {
		t.Fatalf("Allow: %v, want the new day to reset the count before checking the limit", err)
	}
}

func TestGate_PersistsUpdatedCountAndTimestamp(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	err := store.UpdateUserManualPushState(ctx, domain.User{ID: 1, Email: "a@example.com"})
	if err != nil {
		t.Fatalf("seed UpdateUserManualPushState: %v", err)
	}

	g := New(store, WithCooldown(0))
	user := domain.User{ID: 1}
	p := domain.Pipeline{ID: 10, OwnerUserID: 1}
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	if err := g.Allow(ctx, user, p, now, time.UTC); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	stored, err := store.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if stored.ManualPushCount != 1 || !stored.ManualPushLastAt.Equal(now) || stored.ManualPushDate != "2026-08-01" {
		t.Fatalf("stored user = %+v", stored)
	}
}
