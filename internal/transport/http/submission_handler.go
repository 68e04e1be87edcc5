package http

import (
	"encoding/json"
	"net/http"
	"time"

	"ctf-scoring-service/internal/domain"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 16

type submitRequest struct {
	Value   *string `json:"value"`
	Content *string `json:"content"`
}

type submitResultItem struct {
	ID          string                  `json:"id"`
	Type        domain.Kind             `json:"type"`
	Correct     bool                    `json:"correct"`
	Status      domain.SubmissionStatus `json:"status"`
	SubmittedAt time.Time               `json:"submitted_at"`
	Score       int                     `json:"score"`
	MaxScore    int                     `json:"max_score"`
	Feedback    string                  `json:"feedback,omitempty"`
}

type submitResponse struct {
	ChallengeID  string              `json:"challenge_id"`
	QuestionType domain.QuestionType `json:"question_type"`
	Results      []submitResultItem  `json:"results"`
}

type previousItem struct {
	ID          string                  `json:"id"`
	Type        domain.Kind             `json:"type"`
	Status      domain.SubmissionStatus `json:"status"`
	Score       int                     `json:"score"`
	Value       string                  `json:"value,omitempty"`
	Content     string                  `json:"content,omitempty"`
	Feedback    string                  `json:"feedback,omitempty"`
	SubmittedBy string                  `json:"submitted_by"`
	SubmittedAt time.Time               `json:"submitted_at"`
}

type previousResponse struct {
	ChallengeID string         `json:"challenge_id"`
	Count       int            `json:"count"`
	Results     []previousItem `json:"results"`
}

// Submit handles POST /submission/{challenge_id}.
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	var body submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, invalid("invalid JSON body"))
		return
	}

	result, err := s.submissions.Submit(r.Context(), principal, mux.Vars(r)["challenge_id"], domain.Attempt{
		Value:   body.Value,
		Content: body.Content,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := submitResponse{
		ChallengeID:  result.ChallengeID,
		QuestionType: result.QuestionType,
		Results:      make([]submitResultItem, 0, len(result.Results)),
	}
	for _, v := range result.Results {
		resp.Results = append(resp.Results, submitResultItem{
			ID:          v.ID.String(),
			Type:        v.Kind,
			Correct:     v.Status == domain.StatusCorrect,
			Status:      v.Status,
			SubmittedAt: v.SubmittedAt,
			Score:       v.Score,
			MaxScore:    v.MaxScore,
			Feedback:    v.Feedback,
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Previous handles GET /submission/{challenge_id}/previous.
func (s *Server) Previous(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	challengeID := mux.Vars(r)["challenge_id"]
	subs, err := s.submissions.Previous(r.Context(), principal, challengeID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := previousResponse{ChallengeID: challengeID, Count: len(subs), Results: make([]previousItem, 0, len(subs))}
	for _, sub := range subs {
		resp.Results = append(resp.Results, previousItem{
			ID:          sub.ID.String(),
			Type:        sub.Kind,
			Status:      sub.Status,
			Score:       sub.Score,
			Value:       sub.Value,
			Content:     sub.Content,
			Feedback:    sub.Feedback,
			SubmittedBy: sub.SubmittedBy,
			SubmittedAt: sub.SubmittedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
