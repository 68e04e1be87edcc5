package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ctf-scoring-service/internal/domain"
)

type reportRequest struct {
	ChallengeID string  `json:"challenge_id"`
	From        *string `json:"from"`
	To          *string `json:"to"`
}

// GenerateReport handles POST /reports/generate (admin only).
func (s *Server) GenerateReport(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	if !principal.IsAdmin() {
		writeError(w, domain.ErrForbidden)
		return
	}

	var body reportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, invalid("invalid JSON body"))
		return
	}
	if strings.TrimSpace(body.ChallengeID) == "" {
		writeError(w, invalid("challenge_id is required"))
		return
	}
	from, err := parseTimestamp(body.From, false)
	if err != nil {
		writeError(w, invalid("from must be an ISO-8601 timestamp"))
		return
	}
	to, err := parseTimestamp(body.To, true)
	if err != nil {
		writeError(w, invalid("to must be an ISO-8601 timestamp"))
		return
	}

	report, err := s.reports.Generate(r.Context(), principal, domain.ReportRequest{
		ChallengeID: strings.TrimSpace(body.ChallengeID),
		From:        from,
		To:          to,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseTimestamp accepts RFC 3339 or a bare date; an empty value means unbounded.
// With endOfDay set, a bare date covers the whole day up to its last instant.
func parseTimestamp(raw *string, endOfDay bool) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return &t, nil
	}
	return nil, invalid("invalid timestamp " + value)
}
