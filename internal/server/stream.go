package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// ProgressEvent is one job update sent to stream subscribers.
type ProgressEvent struct {
	JobID       string    `json:"jobId"`
	State       JobState  `json:"state"`
	BlocksDone  int       `json:"blocksDone"`
	BlocksTotal int       `json:"blocksTotal"`
	SSIM        float64   `json:"ssim"`
	Verdict     string    `json:"verdict,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func progressEvent(job *Job) ProgressEvent {
	return ProgressEvent{
		JobID:       job.ID,
		State:       job.State,
		BlocksDone:  job.BlocksDone,
		BlocksTotal: job.BlocksTotal,
		SSIM:        job.SSIM,
		Verdict:     job.Verdict,
		Timestamp:   time.Now(),
	}
}

// EventBroadcaster fans job events out to stream subscribers.
type EventBroadcaster struct {
	mu        sync.Mutex
	clients   map[string]map[chan ProgressEvent]bool // jobID -> subscriber channels
	lastEvent map[string]ProgressEvent               // replayed to new subscribers
	closed    bool
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan ProgressEvent]bool),
		lastEvent: make(map[string]ProgressEvent),
	}
}

// Subscribe returns a channel receiving every later event of jobID, starting
// with the most recent one if any. After Close the channel is already closed.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, 32)
	if eb.closed {
		close(ch)
		return ch
	}

	if eb.clients[jobID] == nil {
		eb.clients[jobID] = make(map[chan ProgressEvent]bool)
	}
	eb.clients[jobID][ch] = true

	if last, ok := eb.lastEvent[jobID]; ok {
		ch <- last
	}

	slog.Debug("Stream client subscribed", "job_id", jobID, "clients", len(eb.clients[jobID]))
	return ch
}

// Unsubscribe removes ch and closes it.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	clients, ok := eb.clients[jobID]
	if !ok || !clients[ch] {
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(eb.clients, jobID)
	}
}

// Broadcast records event as the job's latest and sends it to every
// subscriber. A subscriber whose buffer is full misses the event.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.lastEvent[event.JobID] = event

	for ch := range eb.clients[event.JobID] {
		select {
		case ch <- event:
		default:
			slog.Warn("Stream channel full, skipping event", "job_id", event.JobID, "state", event.State)
		}
	}
}

// Close ends every subscription. Later broadcasts are dropped.
func (eb *EventBroadcaster) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true
	for jobID, clients := range eb.clients {
		for ch := range clients {
			close(ch)
		}
		delete(eb.clients, jobID)
	}
}

// handleJobStream handles GET /api/v1/jobs/{id}/stream. Events are sent as
// server-sent events until the job reaches a final state.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	// Subscribing first means no update between this snapshot and the
	// first channel read is lost.
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeSSEEvent(w, progressEvent(&job)); err != nil {
		s.logger.Error("Failed to write stream event", "error", err)
		return
	}
	flusher.Flush()
	if job.State.Done() {
		return
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("Stream client disconnected", "job_id", jobID)
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				s.logger.Error("Failed to write stream event", "error", err)
				return
			}
			flusher.Flush()
			if event.State.Done() {
				return
			}

		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
