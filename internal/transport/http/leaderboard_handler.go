package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ctf-scoring-service/internal/domain"
)

// Leaderboard handles GET /leaderboard.
func (s *Server) Leaderboard(w http.ResponseWriter, r *http.Request) {
	page, err := s.boards.Query(r.Context(), boardQuery(r.URL.Query()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// boardQuery reads mode, contest_id, rank_by, actor, search, page and page_size.
// An absent mode means practice.
func boardQuery(values url.Values) domain.BoardQuery {
	mode := strings.ToLower(strings.TrimSpace(values.Get("mode")))
	if mode == "" {
		mode = string(domain.ModePractice)
	}
	return domain.BoardQuery{
		Mode:      domain.BoardMode(mode),
		ContestID: strings.TrimSpace(values.Get("contest_id")),
		RankBy:    domain.RankBy(strings.ToLower(strings.TrimSpace(values.Get("rank_by")))),
		ActorKind: domain.ActorKind(strings.ToLower(strings.TrimSpace(values.Get("actor")))),
		Search:    strings.TrimSpace(values.Get("search")),
		Page:      parseIntDefault(values.Get("page"), 1),
		PageSize:  parseIntDefault(values.Get("page_size"), 0),
	}
}

func parseIntDefault(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}
