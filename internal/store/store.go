package store

import "image"

// Store defines the interface for run persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically writes the run record. An existing record with the
	// same ID is overwritten.
	SaveRun(run *Run) error

	// LoadRun retrieves the run with the given ID.
	LoadRun(runID string) (*Run, error)

	// ListRuns returns metadata for all stored runs, oldest first.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run record and all associated artifacts:
	//   - run.json
	//   - every saved image
	//   - trace.jsonl
	DeleteRun(runID string) error

	// SaveImage writes img as <name>.png next to the run record.
	SaveImage(runID, name string, img image.Image) error

	// ImagePath returns where SaveImage puts the named image.
	ImagePath(runID, name string) string
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
