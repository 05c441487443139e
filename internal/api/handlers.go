package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"agentflow/internal/game"
	"agentflow/internal/session"
	"agentflow/internal/store"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	cat := s.engine.Catalog
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":          cat.Agents,
		"actions":         cat.Actions,
		"regimes":         cat.Regimes,
		"store_items":     cat.StoreItems,
		"milestones":      cat.Milestones,
		"crash_duration":  s.engine.Balance.CrashDuration.Milliseconds(),
		"prestige_target": s.engine.Balance.PrestigeThreshold,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleManualAction(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := sess.ManualAction(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res, "view": sess.View()})
}

func (s *Server) handleBuyAgent(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := sess.BuyAgent(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase": p, "view": sess.View()})
}

func (s *Server) handlePrestige(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := sess.Prestige(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := sess.Reset(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.board.Top(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rows == nil {
		rows = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": rows})
}

// handleCommerceGrant applies a store purchase already validated by the
// payment flow. The grant id makes redelivery a no-op.
func (s *Server) handleCommerceGrant(w http.ResponseWriter, r *http.Request) {
	if !secretMatches(s.cfg.CommerceSecret, r.Header.Get("X-Commerce-Secret")) {
		writeError(w, http.StatusUnauthorized, "invalid commerce secret")
		return
	}
	var in struct {
		UserID  string `json:"user_id"`
		ItemID  string `json:"item_id"`
		GrantID string `json:"grant_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if _, ok := s.engine.Catalog.Item(in.ItemID); !ok {
		writeDomainError(w, game.ErrUnknownItem)
		return
	}
	grantID := strings.TrimSpace(in.GrantID)
	if grantID == "" {
		grantID = idempotencyKey(r)
	}

	// The claim is taken only once the session is live and is released if the
	// grant fails, so a paid grant is never burned without being applied.
	sess, err := s.sessions.Get(r.Context(), in.UserID, nil)
	if err != nil {
		s.log.Error("commerce grant: load session", "user_id", in.UserID, "grant_id", grantID, "err", err)
		writeDomainError(w, err)
		return
	}
	if err := s.grants.ClaimGrant(r.Context(), in.UserID, grantID, in.ItemID); err != nil {
		writeDomainError(w, err)
		return
	}
	ev, err := sess.ApplyGrant(in.ItemID)
	if err != nil {
		if rerr := s.grants.ReleaseGrant(context.WithoutCancel(r.Context()), in.UserID, grantID); rerr != nil {
			s.log.Error("commerce grant: release claim", "user_id", in.UserID, "grant_id", grantID, "err", rerr)
		}
		writeDomainError(w, err)
		return
	}
	s.log.Info("commerce grant applied", "user_id", in.UserID, "item_id", in.ItemID, "grant_id", grantID)
	writeJSON(w, http.StatusOK, map[string]any{"grant_id": grantID, "event": ev})
}

func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	if !secretMatches(s.cfg.AdminToken, bearerToken(r.Header.Get("Authorization"))) {
		writeError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}
	userID := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(r.Context(), userID, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := sess.Reset(); err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Warn("admin reset", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user_id": userID})
}

// secretMatches refuses when no secret is configured.
func secretMatches(want, got string) bool {
	want = strings.TrimSpace(want)
	got = strings.TrimSpace(got)
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicateGrant):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrActionAutomated):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrAgentLocked), errors.Is(err, game.ErrPrestigeLocked):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrCrashed), errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrDebounced):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, game.ErrUnknownAgent), errors.Is(err, game.ErrUnknownAction), errors.Is(err, game.ErrUnknownItem):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
