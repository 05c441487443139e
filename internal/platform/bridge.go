package platform

import (
	"context"
	"errors"
	"sync"

	"agentflow/internal/game"
)

var ErrKeyNotFound = errors.New("cloud storage key not found")

// Bridge is the host messaging app capability handed to a session. The game
// engine never reaches the host directly.
type Bridge interface {
	Vibrate(kind game.Haptic)
	CloudGet(ctx context.Context, key string) (string, error)
	CloudSet(ctx context.Context, key, value string) error
	ShowConfirm(message string) bool
}

// Nop drops everything and declines every confirmation.
type Nop struct{}

func (Nop) Vibrate(game.Haptic) {}

func (Nop) CloudGet(context.Context, string) (string, error) { return "", ErrKeyNotFound }

func (Nop) CloudSet(context.Context, string, string) error { return nil }

func (Nop) ShowConfirm(string) bool { return false }

// Memory records calls for inspection and keeps cloud storage in a map.
type Memory struct {
	mu        sync.Mutex
	cloud     map[string]string
	haptics   []game.Haptic
	confirms  []string
	ConfirmOK bool
}

func NewMemory() *Memory {
	return &Memory{cloud: map[string]string{}}
}

func (m *Memory) Vibrate(kind game.Haptic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.haptics = append(m.haptics, kind)
}

func (m *Memory) CloudGet(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cloud[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (m *Memory) CloudSet(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cloud[key] = value
	return nil
}

func (m *Memory) ShowConfirm(message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms = append(m.confirms, message)
	return m.ConfirmOK
}

func (m *Memory) Haptics() []game.Haptic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]game.Haptic(nil), m.haptics...)
}

func (m *Memory) Confirms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.confirms...)
}
