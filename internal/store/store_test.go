package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"agentflow/internal/game"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	lite, err := OpenSQLite(filepath.Join(t.TempDir(), "agentflow.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = lite.Close() })
	return map[string]Backend{
		"memory": NewMemory(),
		"sqlite": lite,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	for name, b := range backends(t) {
		if _, err := b.Load(ctx, "u1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}

		s := game.NewState(now)
		s.Resources.Capital = 1234
		s.Inventory = []game.Ownership{{ID: "agent_support_v1", Quantity: 2}}
		s.Meta.EventsFired[game.EventSocialMedia] = now.UnixMilli()
		if err := b.Save(ctx, "u1", s); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		s.Resources.Capital = 1
		if err := b.Save(ctx, "u1", s); err != nil {
			t.Fatalf("%s: overwrite: %v", name, err)
		}

		got, err := b.Load(ctx, "u1")
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if got.Resources.Capital != 1 || got.Owned("agent_support_v1") != 2 || !got.EventFired(game.EventSocialMedia) {
			t.Fatalf("%s: unexpected state %+v", name, got)
		}

		users, err := b.Users(ctx)
		if err != nil || len(users) != 1 || users[0] != "u1" {
			t.Fatalf("%s: users=%v err=%v", name, users, err)
		}
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		for _, e := range []Entry{
			{UserID: "a", Name: "Ada", Valuation: 100},
			{UserID: "b", Name: "Bob", Valuation: 900},
			{UserID: "c", Name: "Cy", Valuation: 500},
			{UserID: "a", Name: "Ada", Valuation: 1000},
		} {
			if err := b.Submit(ctx, e); err != nil {
				t.Fatalf("%s: submit: %v", name, err)
			}
		}
		top, err := b.Top(ctx, 2)
		if err != nil {
			t.Fatalf("%s: top: %v", name, err)
		}
		if len(top) != 2 || top[0].UserID != "a" || top[1].UserID != "b" {
			t.Fatalf("%s: top=%+v", name, top)
		}
		if top[0].Rank != 1 || top[1].Rank != 2 {
			t.Fatalf("%s: ranks=%d,%d", name, top[0].Rank, top[1].Rank)
		}
	}
}

func TestClaimGrantIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		if err := b.ClaimGrant(ctx, "u1", "g-1", "crash_insurance"); err != nil {
			t.Fatalf("%s: first claim: %v", name, err)
		}
		if err := b.ClaimGrant(ctx, "u1", "g-1", "crash_insurance"); !errors.Is(err, ErrDuplicateGrant) {
			t.Fatalf("%s: expected ErrDuplicateGrant, got %v", name, err)
		}
	}
}

func TestReleaseGrantAllowsRedelivery(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		if err := b.ClaimGrant(ctx, "u1", "g-2", "crash_insurance"); err != nil {
			t.Fatalf("%s: claim: %v", name, err)
		}
		if err := b.ReleaseGrant(ctx, "u2", "g-2"); err != nil {
			t.Fatalf("%s: foreign release: %v", name, err)
		}
		if err := b.ClaimGrant(ctx, "u1", "g-2", "crash_insurance"); !errors.Is(err, ErrDuplicateGrant) {
			t.Fatalf("%s: release by another user must not free the grant, got %v", name, err)
		}
		if err := b.ReleaseGrant(ctx, "u1", "g-2"); err != nil {
			t.Fatalf("%s: release: %v", name, err)
		}
		if err := b.ClaimGrant(ctx, "u1", "g-2", "crash_insurance"); err != nil {
			t.Fatalf("%s: claim after release: %v", name, err)
		}
	}
}

func TestCorruptBlobIsRejected(t *testing.T) {
	m := NewMemory()
	m.PutRaw("u1", []byte("{not json"))
	if _, err := m.Load(context.Background(), "u1"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	m.PutRaw("u2", []byte(`{"resources":{"capital":5}}`))
	if _, err := m.Load(context.Background(), "u2"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for blob without timestamps, got %v", err)
	}
}
