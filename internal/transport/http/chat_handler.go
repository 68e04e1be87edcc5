package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"ctf-scoring-service/internal/domain"
)

type chatRequest struct {
	ChallengeID string `json:"challenge_id"`
	Text        string `json:"text"`
}

// ChatPractice handles POST /chat/practice.
func (s *Server) ChatPractice(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	var body chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, invalid("invalid JSON body"))
		return
	}
	if strings.TrimSpace(body.ChallengeID) == "" {
		writeError(w, invalid("challenge_id is required"))
		return
	}

	reply, err := s.chat.Send(r.Context(), principal, strings.TrimSpace(body.ChallengeID), body.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id":        reply.ThreadID,
		"reply":            reply.Reply,
		"percent_on_track": reply.PercentOnTrack,
	})
}

// ChatThread handles GET /chat/thread.
func (s *Server) ChatThread(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	q := r.URL.Query()
	challengeID := strings.TrimSpace(q.Get("challenge_id"))
	if challengeID == "" {
		writeError(w, invalid("challenge_id is required"))
		return
	}
	history, err := s.chat.History(r.Context(), principal, challengeID,
		parseIntDefault(q.Get("page"), 1), parseIntDefault(q.Get("page_size"), 0))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id": history.ThreadID,
		"count":     history.Count,
		"page":      history.Page,
		"page_size": history.PageSize,
		"results":   history.Results,
	})
}

// ClearChatThread handles DELETE /chat/thread.
func (s *Server) ClearChatThread(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	challengeID := strings.TrimSpace(r.URL.Query().Get("challenge_id"))
	if challengeID == "" {
		writeError(w, invalid("challenge_id is required"))
		return
	}
	if err := s.chat.Clear(r.Context(), principal, challengeID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
