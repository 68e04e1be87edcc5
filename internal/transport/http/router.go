package http

import (
	"net/http"

	"ctf-scoring-service/internal/app"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Deps are the use cases exposed over HTTP.
type Deps struct {
	Submissions *app.SubmissionService
	Boards      *app.LeaderboardService
	Reports     *app.ReportService
	Chat        *app.ChatService
	Auth        *Authenticator
	Logger      *zap.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	submissions *app.SubmissionService
	boards      *app.LeaderboardService
	reports     *app.ReportService
	chat        *app.ChatService
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

// NewRouter wires every route. Everything except /healthz requires a bearer token.
func NewRouter(deps Deps) *mux.Router {
	s := &Server{
		submissions: deps.Submissions,
		boards:      deps.Boards,
		reports:     deps.Reports,
		chat:        deps.Chat,
		logger:      deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(deps.Auth.Middleware)
	api.HandleFunc("/submission/{challenge_id}", s.Submit).Methods(http.MethodPost)
	api.HandleFunc("/submission/{challenge_id}/previous", s.Previous).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", s.Leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/reports/generate", s.GenerateReport).Methods(http.MethodPost)
	api.HandleFunc("/chat/practice", s.ChatPractice).Methods(http.MethodPost)
	api.HandleFunc("/chat/thread", s.ChatThread).Methods(http.MethodGet)
	api.HandleFunc("/chat/thread", s.ClearChatThread).Methods(http.MethodDelete)
	api.HandleFunc("/ws/leaderboard", s.ServeLeaderboardWS).Methods(http.MethodGet)
	return r
}

// fail writes the mapped error response and logs unexpected failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}
