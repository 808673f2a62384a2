// Package api provides the HTTP API over the simulation engine: model
// validation, single-period reports, multi-period simulations, and access
// to persisted runs. All endpoints speak JSON.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/02loveslollipop/companyOperationSimulator/internal/engine"
	"github.com/02loveslollipop/companyOperationSimulator/internal/model"
	"github.com/02loveslollipop/companyOperationSimulator/internal/persistence"
)

// maxSimulationPeriods bounds a single request so one call cannot pin the
// server.
const maxSimulationPeriods = 1200

// Server serves the simulation engine over HTTP. DB may be nil, which
// disables the run endpoints.
type Server struct {
	DB   *persistence.DB
	Port int

	// Seed for engines built per request, unless the request carries its
	// own.
	Seed int64
}

// Start begins serving the HTTP API. Blocks until the listener fails.
func (s *Server) Start() error {
	simLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/validate", s.handleValidate)
	mux.HandleFunc("POST /api/v1/report", s.handleReport)
	mux.HandleFunc("POST /api/v1/simulate", RateLimitMiddleware(simLimiter, s.handleSimulate))
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/run/{id}", s.handleRun)

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("api listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

// simRequest is the shared request body: the model document plus run
// parameters.
type simRequest struct {
	Model     json.RawMessage    `json:"model"`
	Periods   int                `json:"periods"`
	Overrides map[string]float64 `json:"overrides"`
	Seed      *int64             `json:"seed"`
}

// buildEngine decodes and builds the request's model and wraps it in an
// engine.
func (s *Server) buildEngine(req *simRequest) (*engine.Engine, error) {
	if len(req.Model) == 0 {
		return nil, errors.New("missing model")
	}
	var doc model.Document
	if err := json.Unmarshal(req.Model, &doc); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	m, err := model.Build(&doc)
	if err != nil {
		return nil, err
	}
	opts := engine.DefaultOptions()
	opts.Seed = s.Seed
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	return engine.New(m, opts), nil
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req simRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.buildEngine(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req simRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	eng, err := s.buildEngine(&req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	rep, err := eng.Report(req.Overrides)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	rep.Timestamp = time.Now().UTC()
	writeJSON(w, rep)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Periods < 1 || req.Periods > maxSimulationPeriods {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("periods must be in [1, %d], got %d", maxSimulationPeriods, req.Periods))
		return
	}
	eng, err := s.buildEngine(&req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	reports, err := eng.Simulate(req.Periods, req.Overrides)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	now := time.Now().UTC()
	for _, rep := range reports {
		rep.Timestamp = now
	}
	writeJSON(w, reports)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, http.StatusNotFound, errors.New("run storage not configured"))
		return
	}
	runs, err := s.DB.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []persistence.RunMeta{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, http.StatusNotFound, errors.New("run storage not configured"))
		return
	}
	id := r.PathValue("id")
	meta, err := s.DB.GetRun(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	reports, err := s.DB.LoadRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]any{
		"run":     meta,
		"reports": reports,
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := err.Error()
	// Model errors can span lines (caret snippets); keep the first line
	// for the status message and the rest in detail.
	var detail string
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		detail = msg[i+1:]
		msg = msg[:i]
	}
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "detail": detail})
}
