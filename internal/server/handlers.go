package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/zeusync/tickloop/internal/core/loop"
	"github.com/zeusync/tickloop/internal/core/observability/log"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /loops/{name}", s.handleLoopStatus)
	mux.HandleFunc("PUT /loops/{name}/timescale", s.handleTimeScale)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	statuses := make([]loop.Status, 0, len(s.order))
	for _, name := range s.order {
		statuses = append(statuses, s.loops[name].Status())
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleLoopStatus(w http.ResponseWriter, r *http.Request) {
	l, err := s.loopNamed(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, l.Status())
}

func (s *Server) handleTimeScale(w http.ResponseWriter, r *http.Request) {
	l, err := s.loopNamed(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	raw := r.URL.Query().Get("value")
	if raw == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing value parameter"))
		return
	}
	scale, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse value: %w", err))
		return
	}
	if err := l.SetTimeScale(scale); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, loop.ErrInvalidTimeScale) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	s.logger.Info("Time scale changed",
		log.String("loop", l.Name()),
		log.Float64("time_scale", scale),
		log.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusOK, l.Status())
}
