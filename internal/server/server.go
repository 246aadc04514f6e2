// Package server exposes the search and indexing operations over a
// JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/highlight"
	"github.com/quarrydocs/quarry/internal/index"
	"github.com/quarrydocs/quarry/internal/search"
	"github.com/quarrydocs/quarry/internal/store"
)

// Config wires the server's collaborators.
type Config struct {
	Engine      *search.Engine
	Coordinator *index.Coordinator
	Highlights  *highlight.Store
	Vectors     store.VectorStore
	Roots       []string
}

// Server serves the quarry HTTP API.
type Server struct {
	engine      *search.Engine
	coordinator *index.Coordinator
	highlights  *highlight.Store
	vectors     store.VectorStore
	roots       []string

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a server.
func New(cfg Config) *Server {
	return &Server{
		engine:      cfg.Engine,
		coordinator: cfg.Coordinator,
		highlights:  cfg.Highlights,
		vectors:     cfg.Vectors,
		roots:       cfg.Roots,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /indexer/status", s.handleStatus)
	mux.HandleFunc("POST /indexer/scan", s.handleScan)
	mux.HandleFunc("POST /highlights", s.handleSaveHighlight)
	mux.HandleFunc("GET /highlights", s.handleListHighlights)
	mux.HandleFunc("DELETE /highlights/{id}", s.handleDeleteHighlight)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start listens on addr and serves until Shutdown. Port 0 picks a free
// port; Addr reports the bound address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	s.mu.Unlock()

	slog.Info("http_server_started", slog.String("addr", listener.Addr().String()))

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type searchRequest struct {
	Query               string   `json:"query"`
	Limit               int      `json:"limit"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, qerrors.New(qerrors.ErrCodeInvalidInput, "invalid request body", err))
		return
	}

	floor := search.DefaultFloor
	if req.SimilarityThreshold != nil {
		floor = *req.SimilarityThreshold
	}

	results, err := s.engine.Search(r.Context(), req.Query, req.Limit, floor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type statusResponse struct {
	Files       map[string]index.FileStatus `json:"files"`
	Counts      map[index.State]int         `json:"counts"`
	TotalChunks int                         `json:"total_chunks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Files:       s.coordinator.Status(),
		Counts:      s.coordinator.Counts(),
		TotalChunks: s.vectors.Count(),
	})
}

type scanResponse struct {
	Scan    index.ScanSummary    `json:"scan"`
	Process index.ProcessSummary `json:"process"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.coordinator.Scan(r.Context(), s.roots)
	if err != nil {
		writeError(w, err)
		return
	}
	process, err := s.coordinator.ProcessPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Scan: scan, Process: process})
}

type saveHighlightRequest struct {
	Text        string   `json:"text"`
	SourceLabel string   `json:"source_label"`
	Tags        []string `json:"tags"`
	Note        string   `json:"note"`
	Priority    bool     `json:"priority"`
}

func (s *Server) handleSaveHighlight(w http.ResponseWriter, r *http.Request) {
	var req saveHighlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, qerrors.New(qerrors.ErrCodeInvalidInput, "invalid request body", err))
		return
	}

	h, err := s.highlights.Save(r.Context(), req.Text, req.SourceLabel, req.Tags, req.Note, req.Priority)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleListHighlights(w http.ResponseWriter, r *http.Request) {
	all, err := s.highlights.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if all == nil {
		all = []highlight.Highlight{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"highlights": all})
}

func (s *Server) handleDeleteHighlight(w http.ResponseWriter, r *http.Request) {
	if err := s.highlights.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps error codes onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch qerrors.GetCode(err) {
	case qerrors.ErrCodeQueryEmpty, qerrors.ErrCodeInvalidInput, qerrors.ErrCodeChunkOverlap:
		status = http.StatusBadRequest
	case qerrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case qerrors.ErrCodeProviderUnavailable, qerrors.ErrCodeProviderTimeout:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error("request_failed", slog.String("error", err.Error()))
	}

	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Code:  qerrors.GetCode(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write_response_failed", slog.String("error", err.Error()))
	}
}
