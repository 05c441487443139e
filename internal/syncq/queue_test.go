package syncq

import (
	"context"
	"errors"
	"testing"
)

var errOffline = errors.New("dial tcp: connection refused")

type fakePlayer struct {
	calls   []string
	offline map[string]bool
	reject  map[string]bool
}

func (f *fakePlayer) record(call, idem string) (map[string]any, error) {
	f.calls = append(f.calls, call+"#"+idem)
	if f.offline[call] {
		return nil, errOffline
	}
	if f.reject[call] {
		return nil, errors.New("409 agent is locked")
	}
	return map[string]any{}, nil
}

func (f *fakePlayer) Click(_ context.Context, actionID, idem string) (map[string]any, error) {
	return f.record("click "+actionID, idem)
}

func (f *fakePlayer) Buy(_ context.Context, agentID, idem string) (map[string]any, error) {
	return f.record("buy "+agentID, idem)
}

func (f *fakePlayer) Prestige(_ context.Context, idem string) (map[string]any, error) {
	return f.record("prestige", idem)
}

func isOffline(err error) bool { return errors.Is(err, errOffline) }

func TestPushRejectsMalformedOps(t *testing.T) {
	t.Setenv("AFL_HOME", t.TempDir())

	cases := []Op{
		{Kind: KindBuy, IdempotencyKey: "k"},
		{Kind: "sell", Target: "x", IdempotencyKey: "k"},
		{Kind: KindPrestige},
	}
	for _, op := range cases {
		if err := Push(op); err == nil {
			t.Fatalf("push(%+v) accepted", op)
		}
	}
	if ops, _ := Load(); len(ops) != 0 {
		t.Fatalf("queue=%v want empty", ops)
	}
}

func TestPushIgnoresRepeatedKey(t *testing.T) {
	t.Setenv("AFL_HOME", t.TempDir())

	op := Op{Kind: KindBuy, Target: "agent_support_v1", IdempotencyKey: "k1"}
	for i := 0; i < 2; i++ {
		if err := Push(op); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	ops, err := Load()
	if err != nil || len(ops) != 1 {
		t.Fatalf("ops=%v err=%v", ops, err)
	}
	if ops[0].QueuedAt.IsZero() {
		t.Fatalf("queued_at not stamped")
	}
}

func TestReplayStopsWhileOfflineAndDropsRejected(t *testing.T) {
	t.Setenv("AFL_HOME", t.TempDir())

	queued := []Op{
		{Kind: KindClick, Target: "acao_enviar_proposta", IdempotencyKey: "a"},
		{Kind: KindBuy, Target: "agent_locked", IdempotencyKey: "b"},
		{Kind: KindBuy, Target: "agent_support_v1", IdempotencyKey: "c"},
		{Kind: KindPrestige, IdempotencyKey: "d"},
	}
	for _, op := range queued {
		if err := Push(op); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	p := &fakePlayer{
		offline: map[string]bool{"buy agent_support_v1": true},
		reject:  map[string]bool{"buy agent_locked": true},
	}
	rep, err := Replay(context.Background(), p, isOffline)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rep.Sent != 1 || rep.Left != 2 || len(rep.Dropped) != 1 || rep.Dropped[0].Op.IdempotencyKey != "b" {
		t.Fatalf("report=%+v", rep)
	}
	if len(p.calls) != 3 || p.calls[0] != "click acao_enviar_proposta#a" {
		t.Fatalf("calls=%v", p.calls)
	}

	ops, _ := Load()
	if len(ops) != 2 || ops[0].IdempotencyKey != "c" || ops[1].Kind != KindPrestige {
		t.Fatalf("remaining=%v", ops)
	}

	p = &fakePlayer{}
	rep, err = Replay(context.Background(), p, isOffline)
	if err != nil || rep.Sent != 2 || rep.Left != 0 {
		t.Fatalf("drain: report=%+v err=%v", rep, err)
	}
	if p.calls[1] != "prestige#d" {
		t.Fatalf("prestige replayed with key %v", p.calls)
	}
	if ops, _ := Load(); len(ops) != 0 {
		t.Fatalf("queue not drained: %v", ops)
	}
}
