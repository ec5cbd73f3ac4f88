package users

import (
	"context"
	"errors"
	"testing"

	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/domain/ledger"
	"github.com/scholarxp/xp-engine/internal/app/domain/user"
	"github.com/scholarxp/xp-engine/internal/app/storage/memory"
)

// warningInvalidator records the scopes it saw and always reports a
// degraded pass.
type warningInvalidator struct {
	scopes []string
}

func (w *warningInvalidator) Invalidate(_ context.Context, scopes ...string) cache.InvalidationResult {
	w.scopes = append(w.scopes, scopes...)
	return cache.InvalidationResult{Scopes: scopes, Warnings: []string{"redis unavailable"}}
}

func TestCreateValidation(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "   ", user.RoleMember); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank handle: %v", err)
	}
	if _, err := svc.Create(ctx, "dana", "superuser"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad role: %v", err)
	}

	created, err := svc.Create(ctx, " dana ", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Handle != "dana" || created.Role != user.RoleMember || !created.Active {
		t.Fatalf("unexpected user: %+v", created)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()

	u, _ := svc.Create(ctx, "dana", user.RoleMember)
	if _, err := svc.Deactivate(ctx, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	again, err := svc.Deactivate(ctx, u.ID)
	if err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
	if again.Active {
		t.Fatal("user still active")
	}
}

func TestAdjustAppendsLedgerEntry(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()

	u, _ := svc.Create(ctx, "dana", user.RoleMember)

	if _, err := svc.Adjust(ctx, u.ID, 0, "nothing"); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero amount: %v", err)
	}
	if _, err := svc.Adjust(ctx, u.ID, 50, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank reason: %v", err)
	}
	if _, err := svc.Adjust(ctx, "missing", 50, "bonus"); err == nil {
		t.Fatal("adjust on unknown user should fail")
	}

	entry, err := svc.Adjust(ctx, u.ID, -30, "manual correction")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if entry.Type != ledger.TypeAdminAdjust || entry.Amount != -30 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	got, _ := store.GetUser(ctx, u.ID)
	if got.TotalXP != -30 {
		t.Fatalf("total xp = %d, want -30", got.TotalXP)
	}

	history, err := svc.Ledger(ctx, u.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(history))
	}
}

func TestAdjustInvalidatesCaches(t *testing.T) {
	store := memory.New()
	inv := &warningInvalidator{}
	svc := New(store, inv, nil)
	ctx := context.Background()

	u, _ := svc.Create(ctx, "dana", user.RoleMember)
	if _, err := svc.Adjust(ctx, u.ID, 25, "bonus"); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	// A degraded invalidation pass never fails the adjustment; the scopes
	// must still have been asked for.
	if len(inv.scopes) != 2 {
		t.Fatalf("invalidated scopes = %v", inv.scopes)
	}
	if inv.scopes[0] != cache.ScopeAnalytics || inv.scopes[1] != cache.ScopeLeaderboard {
		t.Fatalf("unexpected scopes: %v", inv.scopes)
	}
}
