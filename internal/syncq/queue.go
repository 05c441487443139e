package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentflow/internal/cli"
)

// Kind is a player move that may be queued while the server is unreachable.
// Reads and resets are never queued.
type Kind string

const (
	KindClick    Kind = "click"
	KindBuy      Kind = "buy"
	KindPrestige Kind = "prestige"
)

// Op is one queued move. Target is the action or agent id; prestige has none.
type Op struct {
	Kind           Kind      `json:"kind"`
	Target         string    `json:"target,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	QueuedAt       time.Time `json:"queued_at"`
}

func (o Op) String() string {
	if o.Target == "" {
		return string(o.Kind)
	}
	return string(o.Kind) + " " + o.Target
}

func (o Op) validate() error {
	switch o.Kind {
	case KindClick, KindBuy:
		if strings.TrimSpace(o.Target) == "" {
			return fmt.Errorf("%s needs a target", o.Kind)
		}
	case KindPrestige:
	default:
		return fmt.Errorf("unknown op %q", o.Kind)
	}
	if o.IdempotencyKey == "" {
		return errors.New("idempotency key is required")
	}
	return nil
}

// Player is the part of the API client a replay drives.
type Player interface {
	Click(ctx context.Context, actionID, idem string) (map[string]any, error)
	Buy(ctx context.Context, agentID, idem string) (map[string]any, error)
	Prestige(ctx context.Context, idem string) (map[string]any, error)
}

// Send replays the op with its original idempotency key, so a move the
// server did apply before the connection dropped is not applied twice.
func (o Op) Send(ctx context.Context, p Player) error {
	var err error
	switch o.Kind {
	case KindClick:
		_, err = p.Click(ctx, o.Target, o.IdempotencyKey)
	case KindBuy:
		_, err = p.Buy(ctx, o.Target, o.IdempotencyKey)
	case KindPrestige:
		_, err = p.Prestige(ctx, o.IdempotencyKey)
	default:
		err = fmt.Errorf("unknown op %q", o.Kind)
	}
	return err
}

type file struct {
	Ops []Op `json:"ops"`
}

func queuePath() (string, error) {
	dir, err := cli.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Op, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Op{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Op{}, nil
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("read sync queue: %w", err)
	}
	if f.Ops == nil {
		f.Ops = []Op{}
	}
	return f.Ops, nil
}

func save(ops []Op) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(file{Ops: ops}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Push appends op. An op whose idempotency key is already queued is ignored.
func Push(op Op) error {
	if err := op.validate(); err != nil {
		return err
	}
	if op.QueuedAt.IsZero() {
		op.QueuedAt = time.Now().UTC()
	}
	ops, err := Load()
	if err != nil {
		return err
	}
	for _, q := range ops {
		if q.IdempotencyKey == op.IdempotencyKey {
			return nil
		}
	}
	return save(append(ops, op))
}

// Failure is an op the server rejected for good.
type Failure struct {
	Op  Op
	Err error
}

type Report struct {
	Sent    int
	Left    int
	Dropped []Failure
}

// Replay sends queued ops in the order they were made. The first error that
// retryable accepts stops the replay and keeps that op and the rest queued;
// any other error drops the op, since its move no longer applies (an agent
// already bought, a burnout in progress).
func Replay(ctx context.Context, p Player, retryable func(error) bool) (Report, error) {
	var rep Report
	ops, err := Load()
	if err != nil {
		return rep, err
	}
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			rep.Left = len(ops) - i
			return rep, errors.Join(err, save(ops[i:]))
		}
		err := op.Send(ctx, p)
		switch {
		case err == nil:
			rep.Sent++
		case retryable(err):
			rep.Left = len(ops) - i
			return rep, save(ops[i:])
		default:
			rep.Dropped = append(rep.Dropped, Failure{Op: op, Err: err})
		}
	}
	return rep, save([]Op{})
}
