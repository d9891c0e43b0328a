package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fentz26/dispatch/internal/models"
)

// Server provides the HTTP API for dispatch.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
	log     zerolog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string, log zerolog.Logger) *Server {
	return &Server{
		service: service,
		addr:    addr,
		log:     log,
	}
}

// Handler builds the route table. Exposed so tests can serve it via
// httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/work/next", s.handleWorkNext)
	mux.HandleFunc("/work/complete", s.handleWorkComplete)
	mux.HandleFunc("/work/failed", s.handleWorkFailed)
	mux.HandleFunc("/work/release", s.handleWorkRelease)

	mux.HandleFunc("/prs/approved", s.handlePRApproved)
	mux.HandleFunc("/prs/changes-requested", s.handlePRChangesRequested)
	mux.HandleFunc("/prs/merged", s.handlePRMerged)

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/queue", s.handleQueue)
	mux.HandleFunc("/workers", s.handleWorkers)
	mux.HandleFunc("/workers/cleanup", s.handleWorkersCleanup)
	mux.HandleFunc("/prs", s.handlePRs)
	mux.HandleFunc("/events", s.handleEvents)

	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- Work handlers ---

func (s *Server) handleWorkNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workerID := r.URL.Query().Get("worker_id")
	if workerID == "" {
		http.Error(w, "worker_id required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.service.RequestWork(workerID))
}

type completeRequest struct {
	WorkerID    string `json:"worker_id"`
	IssueNumber int    `json:"issue_number"`
	PRURL       string `json:"pr_url"`
	Success     bool   `json:"success"`
	Error       string `json:"error"`
}

func (s *Server) handleWorkComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" || req.IssueNumber == 0 {
		http.Error(w, "worker_id and issue_number required", http.StatusBadRequest)
		return
	}

	if !s.service.ReportComplete(r.Context(), req.WorkerID, req.IssueNumber, req.PRURL, req.Success, req.Error) {
		http.Error(w, "no matching in-progress item for this worker", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type failedRequest struct {
	WorkerID    string `json:"worker_id"`
	IssueNumber int    `json:"issue_number"`
	Error       string `json:"error"`
}

func (s *Server) handleWorkFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req failedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" || req.IssueNumber == 0 {
		http.Error(w, "worker_id and issue_number required", http.StatusBadRequest)
		return
	}

	if !s.service.ReportFailed(r.Context(), req.WorkerID, req.IssueNumber, req.Error) {
		http.Error(w, "no matching in-progress item for this worker", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type releaseRequest struct {
	WorkerID    string `json:"worker_id"`
	IssueNumber int    `json:"issue_number"`
}

func (s *Server) handleWorkRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" || req.IssueNumber == 0 {
		http.Error(w, "worker_id and issue_number required", http.StatusBadRequest)
		return
	}

	if !s.service.ReleaseWork(req.WorkerID, req.IssueNumber) {
		http.Error(w, "no matching in-progress item for this worker", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// --- Review signal handlers ---

type reviewRequest struct {
	IssueNumber int `json:"issue_number"`
}

func (s *Server) decodeReview(w http.ResponseWriter, r *http.Request) (int, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return 0, false
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return 0, false
	}
	if req.IssueNumber == 0 {
		http.Error(w, "issue_number required", http.StatusBadRequest)
		return 0, false
	}
	return req.IssueNumber, true
}

func (s *Server) handlePRApproved(w http.ResponseWriter, r *http.Request) {
	issue, ok := s.decodeReview(w, r)
	if !ok {
		return
	}
	s.service.ReviewApproved(issue)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handlePRChangesRequested(w http.ResponseWriter, r *http.Request) {
	issue, ok := s.decodeReview(w, r)
	if !ok {
		return
	}
	s.service.ReviewChangesRequested(issue)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handlePRMerged(w http.ResponseWriter, r *http.Request) {
	issue, ok := s.decodeReview(w, r)
	if !ok {
		return
	}
	s.service.ReviewMerged(issue)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// --- Observability handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Health(r.Context()))
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Queue())
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list := s.service.Workers()
	if list == nil {
		list = []WorkerInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

type cleanupRequest struct {
	Days int `json:"days"`
}

func (s *Server) handleWorkersCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Days <= 0 {
		req.Days = 7
	}

	removed := s.service.CleanupWorkers(req.Days)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handlePRs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.service.PendingPRs()
	if status.Pending == nil {
		status.Pending = []models.PendingPR{}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.service.Events(r.URL.Query().Get("action"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
