// Package server exposes transport jobs over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cwbudde/pixelsculptor/internal/imageio"
	"github.com/cwbudde/pixelsculptor/internal/pipeline"
	"github.com/cwbudde/pixelsculptor/internal/transport"
)

// DefaultMethod is used when a submission names no method.
const DefaultMethod = transport.MethodBlockwise

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	pipeline   *pipeline.Pipeline
	addr       string
	server     *http.Server
	logger     *slog.Logger

	// jobsCtx is cancelled on Shutdown; every job runs under it.
	jobsCtx    context.Context
	cancelJobs context.CancelFunc

	// mu orders workers.Add against Shutdown; closing rejects new jobs.
	mu      sync.Mutex
	closing bool
	workers sync.WaitGroup
}

// NewServer creates a server that runs jobs through p. A nil logger uses
// slog.Default().
func NewServer(addr string, p *pipeline.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		pipeline:   p,
		addr:       addr,
		logger:     logger,
		jobsCtx:    ctx,
		cancelJobs: cancel,
	}
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Get("/", s.handleListJobs)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetJobStatus)
			r.Get("/status", s.handleGetJobStatus)
			r.Get("/result.png", s.handleGetResultImage)
			r.Get("/diff.png", s.handleGetDiffImage)
			r.Get("/stream", s.handleJobStream)
		})
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs, waits for their workers and stops the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.mu.Lock()
	s.closing = true
	s.cancelJobs()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.jobManager.broadcaster.Close()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if config.SourcePath == "" || config.TargetPath == "" {
		http.Error(w, "sourcePath and targetPath are required", http.StatusBadRequest)
		return
	}
	if config.Method == "" {
		config.Method = string(DefaultMethod)
	}
	if _, err := transport.ParseMethod(config.Method); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if config.TargetWidth < 0 || config.TargetHeight < 0 {
		http.Error(w, "targetWidth and targetHeight cannot be negative", http.StatusBadRequest)
		return
	}

	job, ok := s.submitJob(config)
	if !ok {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// submitJob registers a job and starts its worker. It fails once Shutdown
// has begun.
func (s *Server) submitJob(config JobConfig) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return Job{}, false
	}

	job := s.jobManager.CreateJob(config)
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		runJob(s.jobsCtx, s.jobManager, s.pipeline, s.logger, job.ID)
	}()
	return job, true
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// JobStatus is the status view of a job.
type JobStatus struct {
	Job
	Progress       float64 `json:"progress"`
	ElapsedSeconds float64 `json:"elapsed"`
}

// handleGetJobStatus handles GET /api/v1/jobs/{id} and /api/v1/jobs/{id}/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "id"))
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, JobStatus{
		Job:            job,
		Progress:       job.Progress(),
		ElapsedSeconds: job.Elapsed().Seconds(),
	})
}

// handleGetResultImage handles GET /api/v1/jobs/{id}/result.png
func (s *Server) handleGetResultImage(w http.ResponseWriter, r *http.Request) {
	job, ok := s.completedJob(w, r)
	if !ok {
		return
	}
	s.writePNG(w, job.result)
}

// handleGetDiffImage handles GET /api/v1/jobs/{id}/diff.png
func (s *Server) handleGetDiffImage(w http.ResponseWriter, r *http.Request) {
	job, ok := s.completedJob(w, r)
	if !ok {
		return
	}
	s.writePNG(w, imageio.DiffImage(job.target, job.result))
}

func (s *Server) completedJob(w http.ResponseWriter, r *http.Request) (Job, bool) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "id"))
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return Job{}, false
	}
	if job.State != StateCompleted || job.result == nil {
		http.Error(w, "No results yet", http.StatusNotFound)
		return Job{}, false
	}
	return job, true
}

func (s *Server) writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		s.logger.Error("Failed to encode PNG", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
