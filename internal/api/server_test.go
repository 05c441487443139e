package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"agentflow/internal/auth"
	"agentflow/internal/config"
	"agentflow/internal/game"
	"agentflow/internal/session"
	"agentflow/internal/store"

	"github.com/gorilla/websocket"
)

const visitorID = "6f1c2d3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f"

type testEnv struct {
	srv      *Server
	mem      *store.Memory
	sessions *session.Manager
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	return newTestEnvWithStore(t, mem, mem)
}

// newTestEnvWithStore lets a test put a wrapper in front of the session store
// while mem keeps serving the leaderboard and the grant ledger.
func newTestEnvWithStore(t *testing.T, mem *store.Memory, saves store.Store) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := game.DefaultEngine()
	env := &testEnv{mem: mem, now: time.UnixMilli(1_700_000_000_000)}
	env.sessions = session.NewManager(engine, saves, nil, logger, session.Options{
		Now:         func() time.Time { return env.now },
		Leaderboard: mem,
	})
	t.Cleanup(func() { _ = env.sessions.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(logger)
	go hub.Run(ctx)

	cfg := config.APIConfig{CommerceSecret: "shh", AdminToken: "root"}
	env.srv = New(cfg, logger, auth.NewTelegram("1:TOKEN", 0, true), engine, env.sessions, mem, mem, hub)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func visitor() map[string]string {
	return map[string]string{"X-Visitor-Id": visitorID}
}

func TestHealthAndAuth(t *testing.T) {
	env := newTestEnv(t)
	if rec, _ := env.do(t, "GET", "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz=%d", rec.Code)
	}
	if rec, _ := env.do(t, "GET", "/v1/state", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated state=%d want 401", rec.Code)
	}
	rec, body := env.do(t, "GET", "/v1/state", nil, visitor())
	if rec.Code != http.StatusOK {
		t.Fatalf("state=%d body=%s", rec.Code, rec.Body.String())
	}
	if _, ok := body["state"]; !ok {
		t.Fatalf("state missing from view: %v", body)
	}
	if rec, _ := env.do(t, "GET", "/v1/catalog", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("catalog=%d", rec.Code)
	}
}

func TestPlayerActionStatusMapping(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "click", path: "/v1/actions/acao_responder_cliente", want: http.StatusOK},
		{name: "debounced", path: "/v1/actions/acao_responder_cliente", want: http.StatusTooManyRequests},
		{name: "unknown action", path: "/v1/actions/nope", want: http.StatusNotFound},
		{name: "broke", path: "/v1/agents/agent_support_v1/buy", want: http.StatusBadRequest},
		{name: "locked", path: "/v1/agents/agent_engineer_v1/buy", want: http.StatusForbidden},
		{name: "unknown agent", path: "/v1/agents/nope/buy", want: http.StatusNotFound},
		{name: "prestige locked", path: "/v1/prestige", want: http.StatusForbidden},
		{name: "reset", path: "/v1/reset", want: http.StatusOK},
	}
	for _, tc := range tests {
		rec, _ := env.do(t, "POST", tc.path, nil, visitor())
		if rec.Code != tc.want {
			t.Fatalf("%s: status=%d want %d body=%s", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestCommerceGrantFlow(t *testing.T) {
	env := newTestEnv(t)
	userID := "visitor:" + visitorID
	grant := map[string]any{"user_id": userID, "item_id": "capital_injection_small", "grant_id": "pay-1"}

	if rec, _ := env.do(t, "POST", "/v1/commerce/grants", grant, map[string]string{"X-Commerce-Secret": "wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad secret=%d", rec.Code)
	}
	secret := map[string]string{"X-Commerce-Secret": "shh"}
	if rec, _ := env.do(t, "POST", "/v1/commerce/grants", grant, secret); rec.Code != http.StatusOK {
		t.Fatalf("grant=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec, _ := env.do(t, "POST", "/v1/commerce/grants", grant, secret); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate grant=%d want 409", rec.Code)
	}
	bad := map[string]any{"user_id": userID, "item_id": "nope", "grant_id": "pay-2"}
	if rec, _ := env.do(t, "POST", "/v1/commerce/grants", bad, secret); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown item=%d want 404", rec.Code)
	}

	_, body := env.do(t, "GET", "/v1/state", nil, visitor())
	state := body["state"].(map[string]any)
	capital := state["resources"].(map[string]any)["capital"].(float64)
	if capital != 50000 {
		t.Fatalf("capital after grant=%v want 50000", capital)
	}

	if rec, _ := env.do(t, "POST", "/v1/agents/agent_support_v1/buy", nil, visitor()); rec.Code != http.StatusOK {
		t.Fatalf("buy after grant=%d", rec.Code)
	}
}

type flakyLoads struct {
	*store.Memory
	failures atomic.Int32
}

func (f *flakyLoads) Load(ctx context.Context, userID string) (*game.GameState, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return f.Memory.Load(ctx, userID)
}

func TestCommerceGrantSurvivesStoreOutage(t *testing.T) {
	mem := store.NewMemory()
	flaky := &flakyLoads{Memory: mem}
	flaky.failures.Store(1)
	env := newTestEnvWithStore(t, mem, flaky)

	userID := "visitor:" + visitorID
	grant := map[string]any{"user_id": userID, "item_id": "capital_injection_small", "grant_id": "pay-outage"}
	secret := map[string]string{"X-Commerce-Secret": "shh"}

	if rec, _ := env.do(t, "POST", "/v1/commerce/grants", grant, secret); rec.Code != http.StatusInternalServerError {
		t.Fatalf("grant during outage=%d want 500", rec.Code)
	}
	if rec, _ := env.do(t, "POST", "/v1/commerce/grants", grant, secret); rec.Code != http.StatusOK {
		t.Fatalf("redelivered grant=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec, _ := env.do(t, "POST", "/v1/commerce/grants", grant, secret); rec.Code != http.StatusConflict {
		t.Fatalf("third delivery=%d want 409", rec.Code)
	}

	_, body := env.do(t, "GET", "/v1/state", nil, visitor())
	state := body["state"].(map[string]any)
	if capital := state["resources"].(map[string]any)["capital"].(float64); capital != 50000 {
		t.Fatalf("capital=%v want 50000 after redelivery", capital)
	}
}

func TestAdminResetAndLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	userID := "visitor:" + visitorID
	if rec, _ := env.do(t, "POST", "/v1/actions/acao_enviar_proposta", nil, visitor()); rec.Code != http.StatusOK {
		t.Fatalf("click=%d", rec.Code)
	}

	if rec, _ := env.do(t, "POST", "/v1/admin/users/"+userID+"/reset", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("admin without token=%d", rec.Code)
	}
	rec, _ := env.do(t, "POST", "/v1/admin/users/"+userID+"/reset", nil, map[string]string{"Authorization": "Bearer root"})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin reset=%d body=%s", rec.Code, rec.Body.String())
	}

	sess, ok := env.sessions.Lookup(userID)
	if !ok {
		t.Fatalf("session missing")
	}
	if err := sess.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	rec, body := env.do(t, "GET", "/v1/leaderboard?limit=5", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard=%d", rec.Code)
	}
	entries := body["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries=%v", entries)
	}
	if name := entries[0].(map[string]any)["name"].(string); !strings.HasPrefix(name, "Visitor ") {
		t.Fatalf("leaderboard name=%q", name)
	}
}

func TestEventStreamDeliversGrant(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	header := http.Header{}
	header.Set("X-Visitor-Id", visitorID)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	grant := map[string]any{"user_id": "visitor:" + visitorID, "item_id": "crash_insurance", "grant_id": "pay-ws"}
	if rec, _ := env.do(t, "POST", "/v1/commerce/grants", grant, map[string]string{"X-Commerce-Secret": "shh"}); rec.Code != http.StatusOK {
		t.Fatalf("grant=%d", rec.Code)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == string(game.EventGrantApplied) {
			if msg.Sender != "engine" {
				t.Fatalf("sender=%q", msg.Sender)
			}
			return
		}
	}
}

func TestEventStreamClosesWithSession(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	header := http.Header{}
	header.Set("X-Visitor-Id", visitorID)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if env.srv.hub.Len() != 1 {
		t.Fatalf("socket not registered")
	}

	if err := env.sessions.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for env.srv.hub.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := env.srv.hub.Len(); n != 0 {
		t.Fatalf("hub still holds %d sockets after the session closed", n)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) && ne.Timeout() {
				t.Fatalf("socket left open: %v", err)
			}
			return
		}
	}
}
