package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, BlocksDone: 3, BlocksTotal: 8})
	eb.Broadcast(ProgressEvent{JobID: "job2", State: StateRunning})

	select {
	case got := <-ch:
		if got.JobID != "job1" || got.BlocksDone != 3 || got.BlocksTotal != 8 {
			t.Errorf("Unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}

	select {
	case got := <-ch:
		t.Errorf("Received an event of another job: %+v", got)
	default:
	}
}

func TestEventBroadcaster_ReplaysLastEvent(t *testing.T) {
	eb := NewEventBroadcaster()
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, BlocksDone: 1})
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, BlocksDone: 2})

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	select {
	case got := <-ch:
		if got.BlocksDone != 2 {
			t.Errorf("Expected the latest event to be replayed, got %+v", got)
		}
	default:
		t.Fatal("Expected a replayed event")
	}
}

func TestEventBroadcaster_Close(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("job1")

	eb.Close()
	if _, ok := <-ch; ok {
		t.Error("Channel should be closed")
	}
	// Unsubscribing after Close must not close the channel twice.
	eb.Unsubscribe("job1", ch)

	late := eb.Subscribe("job1")
	if _, ok := <-late; ok {
		t.Error("Subscriptions after Close should be closed")
	}
}

func TestJobManager_BroadcastsUpdates(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{SourcePath: "a.png", TargetPath: "b.png"})

	ch := jm.broadcaster.Subscribe(job.ID)
	defer jm.broadcaster.Unsubscribe(job.ID, ch)

	if first := <-ch; first.State != StatePending {
		t.Errorf("Expected replayed pending event, got %s", first.State)
	}

	jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.BlocksDone, j.BlocksTotal = 1, 4
	})
	got := <-ch
	if got.State != StateRunning || got.BlocksDone != 1 || got.BlocksTotal != 4 {
		t.Errorf("Unexpected event: %+v", got)
	}
}

// readEvents collects stream events until the server ends the response.
func readEvents(t *testing.T, resp *http.Response) []ProgressEvent {
	t.Helper()
	var events []ProgressEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event ProgressEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			t.Fatalf("Failed to decode event %q: %v", data, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	return events
}

func stateRank(s JobState) int {
	switch s {
	case StatePending:
		return 0
	case StateRunning:
		return 1
	default:
		return 2
	}
}

func TestServer_JobStream(t *testing.T) {
	src, tgt := createTestImages(t)
	s, ts := newTestServer(t)

	job := s.jobManager.CreateJob(JobConfig{SourcePath: src, TargetPath: tgt, Method: "blockwise"})

	resp, err := http.Get(ts.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}

	// The subscription is live once headers arrive, so no update is missed.
	done := make(chan error, 1)
	go func() {
		done <- runJob(context.Background(), s.jobManager, s.pipeline, quietLogger(), job.ID)
	}()

	events := readEvents(t, resp)
	if err := <-done; err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	if len(events) < 2 {
		t.Fatalf("Expected several events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if stateRank(cur.State) < stateRank(prev.State) {
			t.Errorf("Event %d: state went from %s back to %s", i, prev.State, cur.State)
		}
		if cur.BlocksDone < prev.BlocksDone {
			t.Errorf("Event %d: blocks done went from %d back to %d", i, prev.BlocksDone, cur.BlocksDone)
		}
	}

	last := events[len(events)-1]
	if last.State != StateCompleted {
		t.Fatalf("Expected the stream to end completed, got %s", last.State)
	}
	if last.BlocksTotal != 4 || last.BlocksDone != 4 {
		t.Errorf("Expected 4/4 blocks, got %d/%d", last.BlocksDone, last.BlocksTotal)
	}
	if last.Verdict == "" {
		t.Error("Final event should carry the verdict")
	}
}

func TestServer_JobStream_FinishedJob(t *testing.T) {
	s, ts := newTestServer(t)

	job := s.jobManager.CreateJob(JobConfig{SourcePath: "a.png", TargetPath: "b.png"})
	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateFailed })

	resp, err := http.Get(ts.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	events := readEvents(t, resp)
	if len(events) != 1 || events[0].State != StateFailed {
		t.Errorf("Expected a single failed event, got %+v", events)
	}
}

func TestServer_JobStream_NotFound(t *testing.T) {
	s := NewServer(":0", testPipeline(), quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/stream", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
