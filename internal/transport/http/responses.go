package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"ctf-scoring-service/internal/domain"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	writeJSON(w, status, body)
}

// errorResponse maps domain errors to status codes. Unknown errors get a generic body.
func errorResponse(err error) (int, errorBody) {
	var (
		denial    *domain.DenialError
		integrity *domain.IntegrityError
	)
	switch {
	case errors.As(err, &denial):
		return http.StatusForbidden, errorBody{Error: denial.Error(), Reason: string(denial.Reason)}
	case errors.As(err, &integrity):
		return http.StatusConflict, errorBody{Error: integrity.Error(), Reason: string(integrity.Reason)}
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Error: err.Error()}
	case errors.Is(err, domain.ErrChallengeNotFound),
		errors.Is(err, domain.ErrContestNotFound):
		return http.StatusNotFound, errorBody{Error: err.Error()}
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrResultsUnpublished),
		errors.Is(err, domain.ErrNotPractice):
		return http.StatusForbidden, errorBody{Error: err.Error()}
	case errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrInvalidRankBy),
		errors.Is(err, domain.ErrInvalidActorKind),
		errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrNoSolution),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal server error"}
	}
}

var errBadRequest = errors.New("bad request")

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func (e badRequest) Is(target error) bool { return target == errBadRequest }

func invalid(msg string) error { return badRequest{msg: msg} }
