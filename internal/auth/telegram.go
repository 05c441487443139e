package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"agentflow/internal/game"

	"github.com/google/uuid"
)

var (
	ErrMissingCredentials = errors.New("missing telegram init data or visitor id")
	ErrInvalidSignature   = errors.New("init data signature mismatch")
	ErrExpired            = errors.New("init data expired")
	ErrMalformed          = errors.New("malformed init data")
)

type Identity struct {
	UserID  string
	Profile game.Profile
}

type telegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Telegram verifies Mini App launch parameters signed with the bot token.
type Telegram struct {
	botToken      string
	maxAge        time.Duration
	allowVisitors bool
	now           func() time.Time
}

func NewTelegram(botToken string, maxAge time.Duration, allowVisitors bool) *Telegram {
	return &Telegram{
		botToken:      botToken,
		maxAge:        maxAge,
		allowVisitors: allowVisitors,
		now:           time.Now,
	}
}

// Authenticate reads credentials from the request. Init data is accepted from
// "Authorization: tma <data>", the X-Telegram-Init-Data header, or the
// init_data query parameter (websocket upgrades cannot set headers).
func (t *Telegram) Authenticate(r *http.Request) (Identity, error) {
	if raw := initDataFromRequest(r); raw != "" {
		return t.Verify(raw)
	}
	if t.allowVisitors {
		if v := strings.TrimSpace(r.Header.Get("X-Visitor-Id")); v != "" {
			return Visitor(v)
		}
	}
	return Identity{}, ErrMissingCredentials
}

func initDataFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "tma") {
		return strings.TrimSpace(parts[1])
	}
	if v := strings.TrimSpace(r.Header.Get("X-Telegram-Init-Data")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("init_data"))
}

// Verify checks the init data hash and age and returns the Telegram user.
func (t *Telegram) Verify(initData string) (Identity, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return Identity{}, fmt.Errorf("%w: hash missing", ErrMalformed)
	}
	want, err := hex.DecodeString(hash)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: hash not hex", ErrMalformed)
	}
	if !hmac.Equal(SignInitData(t.botToken, values), want) {
		return Identity{}, ErrInvalidSignature
	}

	if t.maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: auth_date", ErrMalformed)
		}
		if t.now().Sub(time.Unix(authDate, 0)) > t.maxAge {
			return Identity{}, ErrExpired
		}
	}

	var u telegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &u); err != nil || u.ID == 0 {
		return Identity{}, fmt.Errorf("%w: user", ErrMalformed)
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	id := strconv.FormatInt(u.ID, 10)
	return Identity{
		UserID: "tg:" + id,
		Profile: game.Profile{
			ID:       id,
			Name:     name,
			Username: u.Username,
			Type:     "telegram",
		},
	}, nil
}

// SignInitData computes the raw HMAC Telegram expects for values, ignoring
// any hash already present.
func SignInitData(botToken string, values url.Values) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}

// Visitor builds an identity for a browser session outside Telegram.
func Visitor(raw string) (Identity, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: visitor id", ErrMalformed)
	}
	short := id.String()[:8]
	return Identity{
		UserID: "visitor:" + id.String(),
		Profile: game.Profile{
			ID:   id.String(),
			Name: "Visitor " + short,
			Type: "visitor",
		},
	}, nil
}
