package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsCredentials(t *testing.T) {
	var gotVisitor, gotAuth, gotIdem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVisitor = r.Header.Get("X-Visitor-Id")
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		_ = json.NewEncoder(w).Encode(map[string]any{"path": r.URL.Path})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", Session{VisitorID: "v-1"})
	out, err := c.Buy(context.Background(), "agent_support_v1", "k-1")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if out["path"] != "/v1/agents/agent_support_v1/buy" {
		t.Fatalf("path=%v", out["path"])
	}
	if gotVisitor != "v-1" || gotAuth != "" || gotIdem != "k-1" {
		t.Fatalf("headers visitor=%q auth=%q idem=%q", gotVisitor, gotAuth, gotIdem)
	}

	c.Creds.InitData = "user=1&hash=abc"
	if _, err := c.State(context.Background()); err != nil {
		t.Fatalf("state: %v", err)
	}
	if gotAuth != "tma user=1&hash=abc" || gotVisitor != "" {
		t.Fatalf("init data not preferred: auth=%q visitor=%q", gotAuth, gotVisitor)
	}
}

func TestClientErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "action debounced"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Session{VisitorID: "v"})
	_, err := c.Click(context.Background(), "acao_responder_cliente", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != status || apiErr.Message != "action debounced" {
		t.Fatalf("err=%v", err)
	}
	if Retryable(err) {
		t.Fatalf("4xx must not be retried")
	}

	status = http.StatusBadGateway
	_, err = c.Click(context.Background(), "acao_responder_cliente", "")
	if !Retryable(err) {
		t.Fatalf("5xx should be retried: %v", err)
	}
	if !Retryable(errors.New("dial tcp: refused")) {
		t.Fatalf("transport errors should be retried")
	}
}

func TestEnsureSessionMintsVisitorOnce(t *testing.T) {
	t.Setenv("AFL_HOME", t.TempDir())

	first, err := EnsureSession()
	if err != nil || first.VisitorID == "" {
		t.Fatalf("first=%+v err=%v", first, err)
	}
	second, err := EnsureSession()
	if err != nil || second.VisitorID != first.VisitorID {
		t.Fatalf("visitor id changed: %q -> %q (%v)", first.VisitorID, second.VisitorID, err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadSession(); err == nil {
		t.Fatalf("session survived clear")
	}
}
