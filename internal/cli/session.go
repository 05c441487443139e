package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Session holds the credentials the CLI plays with. InitData wins over
// VisitorID when both are set.
type Session struct {
	VisitorID string `json:"visitor_id,omitempty"`
	InitData  string `json:"init_data,omitempty"`
}

// BaseDir is ~/.afl unless AFL_HOME points elsewhere.
func BaseDir() (string, error) {
	dir := strings.TrimSpace(os.Getenv("AFL_HOME"))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".afl")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func sessionPath() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

func SaveSession(s Session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

func LoadSession() (Session, error) {
	path, err := sessionPath()
	if err != nil {
		return Session{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// EnsureSession loads the saved credentials or mints a visitor id on
// first run.
func EnsureSession() (Session, error) {
	s, err := LoadSession()
	if err == nil && (s.VisitorID != "" || s.InitData != "") {
		return s, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Session{}, err
	}
	s = Session{VisitorID: uuid.NewString()}
	if err := SaveSession(s); err != nil {
		return Session{}, err
	}
	return s, nil
}

func ClearSession() error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
