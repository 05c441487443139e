package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"agentflow/internal/game"
	"agentflow/internal/platform"
	"agentflow/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, st store.Store, bridge platform.Bridge) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	s := New("u1", game.NewState(clock.Now()), game.DefaultEngine(), st, bridge, quietLogger(), Options{Now: clock.Now})
	return s, clock
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSavesAreThrottled(t *testing.T) {
	s, clock := newTestSession(t, store.NewMemory(), nil)
	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		s.Tick()
		if len(s.saveCh) != 0 {
			t.Fatalf("save queued after %ds", i+1)
		}
	}
	clock.Advance(time.Second)
	s.Tick()
	if len(s.saveCh) != 1 {
		t.Fatalf("expected a queued save at the 5s window")
	}

	clock.Advance(time.Second)
	s.Tick()
	if len(s.saveCh) != 1 {
		t.Fatalf("throttle window should not queue a second save")
	}
}

func TestSaveFailureIsNonFatal(t *testing.T) {
	mem := store.NewMemory()
	mem.FailSaves(errors.New("storage down"))
	s, clock := newTestSession(t, mem, nil)
	s.Start(context.Background())
	defer s.Close(context.Background())

	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.dirty
	})

	clock.Advance(time.Second)
	s.Tick()
	if _, err := s.ManualAction("acao_responder_cliente"); err != nil {
		t.Fatalf("session unusable after save failure: %v", err)
	}

	mem.FailSaves(nil)
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	got, err := mem.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load after recovery: %v", err)
	}
	if got.Resources.Capital <= 0 {
		t.Fatalf("expected clicked capital to be persisted, got %v", got.Resources.Capital)
	}
}

func TestEventsReachSubscribersAndBridge(t *testing.T) {
	bridge := platform.NewMemory()
	s, clock := newTestSession(t, store.NewMemory(), bridge)
	events, cancel := s.Subscribe()
	defer cancel()

	s.mu.Lock()
	s.state.Resources.Stress = 100
	s.mu.Unlock()

	clock.Advance(time.Second)
	s.Tick()

	select {
	case ev := <-events:
		if ev.Kind != game.EventCrashEntered {
			t.Fatalf("first event=%s want crash", ev.Kind)
		}
	default:
		t.Fatalf("no event delivered")
	}

	found := false
	for _, h := range bridge.Haptics() {
		if h == game.HapticError {
			found = true
		}
	}
	if !found {
		t.Fatalf("crash did not vibrate: %v", bridge.Haptics())
	}

	if _, err := s.ManualAction("acao_responder_cliente"); !errors.Is(err, game.ErrCrashed) {
		t.Fatalf("manual during crash: err=%v", err)
	}
}

func TestPrestigeOfferConfirmed(t *testing.T) {
	bridge := platform.NewMemory()
	bridge.ConfirmOK = true
	s, clock := newTestSession(t, store.NewMemory(), bridge)

	s.mu.Lock()
	s.state.Meta.CapitalTotal = 1e9
	s.state.Resources.HoursSaved = 1e6
	for _, v := range s.engine.Catalog.Vulnerabilities {
		s.state.Meta.EventsFired[v.ID] = 1
	}
	s.mu.Unlock()

	clock.Advance(time.Second)
	s.Tick()

	if len(bridge.Confirms()) != 1 {
		t.Fatalf("expected one confirmation prompt, got %v", bridge.Confirms())
	}
	v := s.View()
	if v.State.Meta.PrestigeLevel != 1 || v.State.Meta.CapitalTotal != 0 {
		t.Fatalf("prestige not applied: level=%d total=%v", v.State.Meta.PrestigeLevel, v.State.Meta.CapitalTotal)
	}
}

func TestCloseFlushesAndMirrors(t *testing.T) {
	mem := store.NewMemory()
	bridge := platform.NewMemory()
	s, _ := newTestSession(t, mem, bridge)
	s.Start(context.Background())

	if _, err := s.ManualAction("acao_enviar_proposta"); err != nil {
		t.Fatalf("manual: %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.ManualAction("acao_enviar_proposta"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	got, err := mem.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Resources.Capital == 0 {
		t.Fatalf("final state not flushed")
	}
	if _, err := bridge.CloudGet(context.Background(), CloudKey); err != nil {
		t.Fatalf("cloud mirror missing: %v", err)
	}
}

func TestSchedulerTicksUntilClosed(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	state := game.NewState(clock.Now())
	state.Inventory = []game.Ownership{{ID: "agent_support_v1", Quantity: 1}}
	s := New("u1", state, game.DefaultEngine(), store.NewMemory(), nil, quietLogger(), Options{
		Now:       clock.Now,
		TickEvery: 5 * time.Millisecond,
	})
	s.Start(context.Background())

	waitFor(t, func() bool { return s.View().State.Meta.CapitalTotal > 0 })
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	after := s.View().State.Meta.CapitalTotal
	time.Sleep(30 * time.Millisecond)
	if s.View().State.Meta.CapitalTotal != after {
		t.Fatalf("ticks continued after close")
	}
}
