package auth

import (
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

const testBotToken = "123456:TEST-TOKEN"

func signed(t *testing.T, authDate time.Time, user string) string {
	t.Helper()
	v := url.Values{}
	v.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	v.Set("query_id", "AAHdF6IQAAAAAN0XohDhrOrc")
	v.Set("user", user)
	v.Set("hash", hex.EncodeToString(SignInitData(testBotToken, v)))
	return v.Encode()
}

func TestVerifyValidInitData(t *testing.T) {
	tg := NewTelegram(testBotToken, time.Hour, false)
	now := time.Unix(1_700_000_000, 0)
	tg.now = func() time.Time { return now }

	id, err := tg.Verify(signed(t, now.Add(-time.Minute), `{"id":42,"first_name":"Ada","last_name":"Lovelace","username":"ada"}`))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "tg:42" || id.Profile.Name != "Ada Lovelace" || id.Profile.Type != "telegram" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	tg := NewTelegram(testBotToken, time.Hour, false)
	now := time.Unix(1_700_000_000, 0)
	tg.now = func() time.Time { return now }

	raw := signed(t, now, `{"id":42,"first_name":"Ada"}`)
	v, _ := url.ParseQuery(raw)
	v.Set("user", `{"id":43,"first_name":"Eve"}`)
	if _, err := tg.Verify(v.Encode()); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	other := NewTelegram("999:OTHER", time.Hour, false)
	other.now = tg.now
	if _, err := other.Verify(raw); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("wrong bot token accepted: %v", err)
	}

	if _, err := tg.Verify(signed(t, now.Add(-2*time.Hour), `{"id":42}`)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := tg.Verify("user=x"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestAuthenticateSources(t *testing.T) {
	tg := NewTelegram(testBotToken, 0, true)
	raw := signed(t, time.Now(), `{"id":7,"username":"seven"}`)

	r := httptest.NewRequest("GET", "/v1/state", nil)
	r.Header.Set("Authorization", "tma "+raw)
	id, err := tg.Authenticate(r)
	if err != nil || id.UserID != "tg:7" || id.Profile.Name != "seven" {
		t.Fatalf("header auth: %+v err=%v", id, err)
	}

	r = httptest.NewRequest("GET", "/v1/events?init_data="+url.QueryEscape(raw), nil)
	if id, err := tg.Authenticate(r); err != nil || id.UserID != "tg:7" {
		t.Fatalf("query auth: %+v err=%v", id, err)
	}

	r = httptest.NewRequest("GET", "/v1/state", nil)
	r.Header.Set("X-Visitor-Id", "6f1c2d3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f")
	if id, err := tg.Authenticate(r); err != nil || id.Profile.Type != "visitor" {
		t.Fatalf("visitor auth: %+v err=%v", id, err)
	}

	strict := NewTelegram(testBotToken, 0, false)
	if _, err := strict.Authenticate(r); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("visitor accepted with visitors disabled: %v", err)
	}
}
