package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"agentflow/internal/game"
)

// Memory is a process-local Backend. Saves are kept encoded so a load never
// aliases a live session's state.
type Memory struct {
	mu     sync.Mutex
	saves  map[string][]byte
	scores map[string]Entry
	grants map[string]string
	fail   error
}

func NewMemory() *Memory {
	return &Memory{
		saves:  map[string][]byte{},
		scores: map[string]Entry{},
		grants: map[string]string{},
	}
}

// FailSaves makes every subsequent Save return err; nil clears it.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// PutRaw stores an arbitrary blob, used to simulate corrupt saves.
func (m *Memory) PutRaw(userID string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[userID] = append([]byte(nil), raw...)
}

func (m *Memory) Load(_ context.Context, userID string) (*game.GameState, error) {
	m.mu.Lock()
	raw, ok := m.saves[userID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeState(raw)
}

func (m *Memory) Save(_ context.Context, userID string, state *game.GameState) error {
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves[userID] = raw
	return nil
}

func (m *Memory) Users(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.saves))
	for id := range m.saves {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Submit(_ context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[e.UserID] = e
	return nil
}

func (m *Memory) Top(_ context.Context, limit int) ([]Entry, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	out := make([]Entry, 0, len(m.scores))
	for _, e := range m.scores {
		out = append(out, e)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Valuation != out[j].Valuation {
			return out[i].Valuation > out[j].Valuation
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (m *Memory) ClaimGrant(_ context.Context, userID, grantID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grants[grantID]; ok {
		return ErrDuplicateGrant
	}
	m.grants[grantID] = userID + ":" + itemID
	return nil
}

func (m *Memory) ReleaseGrant(_ context.Context, userID, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.grants[grantID]; ok && strings.HasPrefix(v, userID+":") {
		delete(m.grants, grantID)
	}
	return nil
}

func (m *Memory) Close() error { return nil }
