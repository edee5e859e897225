// Package httpapi exposes the scout facade over HTTP and pushes pipeline
// events to websocket clients.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/scout"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 20

// Facade is the subset of *scout.Service the API serves.
type Facade interface {
	GetNewTokens(ctx context.Context) ([]*domain.Token, error)
	AddToken(ctx context.Context, address string) (*domain.Token, bool, error)
	AnalyzeToken(ctx context.Context, address string) (*domain.Analysis, error)
	CalculateScore(a *domain.Analysis) domain.Score
	QueueTokenAnalysis(address string) (bool, error)
	GetSavedTokens(ctx context.Context) ([]*domain.Token, error)
	GetToken(ctx context.Context, address string) (*domain.Token, error)
	ScoreHistory(ctx context.Context, address string) ([]domain.ScoreSnapshot, error)
	Status(ctx context.Context) (scout.Status, error)
	ReconnectFeed() error
}

// ServerOptions configures optional routes.
type ServerOptions struct {
	Hub     *Hub         // serves /ws when set
	Metrics http.Handler // serves /metrics when set
	Logger  zerolog.Logger
}

type server struct {
	svc Facade
	hub *Hub
	mux *http.ServeMux
	log zerolog.Logger
}

// NewServer builds the API handler.
func NewServer(svc Facade, opts ServerOptions) http.Handler {
	s := &server{
		svc: svc,
		hub: opts.Hub,
		mux: http.NewServeMux(),
		log: opts.Logger.With().Str("component", "httpapi").Logger(),
	}
	s.routes(opts.Metrics)
	return s.mux
}

func (s *server) routes(metrics http.Handler) {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/feed/reconnect", s.handleReconnect)
	s.mux.HandleFunc("GET /api/tokens", s.handleTokens)
	s.mux.HandleFunc("POST /api/tokens/discover", s.handleDiscover)
	s.mux.HandleFunc("GET /api/tokens/{address}", s.handleToken)
	s.mux.HandleFunc("POST /api/tokens/{address}", s.handleAddToken)
	s.mux.HandleFunc("GET /api/tokens/{address}/analysis", s.handleAnalysis)
	s.mux.HandleFunc("GET /api/tokens/{address}/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/tokens/{address}/queue", s.handleQueue)
	s.mux.HandleFunc("POST /api/score", s.handleScore)

	if s.hub != nil {
		s.mux.Handle("GET /ws", s.hub)
	}
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC()})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	if err := s.svc.ReconnectFeed(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"reconnecting": true})
}

func (s *server) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.svc.GetSavedTokens(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.svc.GetNewTokens(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.GetToken(r.Context(), r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	t, created, err := s.svc.AddToken(r.Context(), r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, t)
}

func (s *server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.AnalyzeToken(r.Context(), r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analysis": a,
		"score":    s.svc.CalculateScore(a),
	})
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.svc.ScoreHistory(r.Context(), r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *server) handleQueue(w http.ResponseWriter, r *http.Request) {
	queued, err := s.svc.QueueTokenAnalysis(r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]bool{"queued": queued})
}

func (s *server) handleScore(w http.ResponseWriter, r *http.Request) {
	var a domain.Analysis
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&a); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_body", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.svc.CalculateScore(&a))
}

type errorBody struct {
	Error   string `json:"error"`
	Address string `json:"address,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	var se *scout.Error
	if !errors.As(err, &se) {
		s.log.Error().Err(err).Msg("unclassified error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
		return
	}

	body := errorBody{Error: string(se.Kind), Address: se.Address}
	if se.Err != nil {
		body.Message = se.Err.Error()
	}
	status := http.StatusInternalServerError
	switch se.Kind {
	case scout.KindInvalidAddress:
		status = http.StatusBadRequest
	case scout.KindNotAToken:
		status = http.StatusUnprocessableEntity
	case scout.KindNotFound:
		status = http.StatusNotFound
	case scout.KindUnavailable:
		status = http.StatusServiceUnavailable
		s.log.Warn().Err(err).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
