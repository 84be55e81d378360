package store

import (
	"time"
)

// RunOptions records the solver settings a run was produced with.
type RunOptions struct {
	BlockSize  int     `json:"blockSize"`
	Reg        float64 `json:"reg"`
	SampleSize int     `json:"sampleSize"`
	Bins       int     `json:"bins"`
}

// Run is the persisted outcome of one color transport.
type Run struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	SourcePath string `json:"sourcePath"`
	TargetPath string `json:"targetPath"`

	// Width and Height are the transformed image dimensions.
	Width  int `json:"width"`
	Height int `json:"height"`

	Options RunOptions `json:"options"`

	SSIM        float64 `json:"ssim"`
	Verdict     string  `json:"verdict"`
	Publishable bool    `json:"publishable"`

	ElapsedSeconds float64   `json:"elapsedSeconds"`
	CreatedAt      time.Time `json:"createdAt"`

	// Images names the PNGs saved with the run, without extension.
	Images []string `json:"images,omitempty"`
}

// RunInfo is the listing view of a run.
type RunInfo struct {
	ID          string    `json:"id"`
	Method      string    `json:"method"`
	SSIM        float64   `json:"ssim"`
	Verdict     string    `json:"verdict"`
	Publishable bool      `json:"publishable"`
	CreatedAt   time.Time `json:"createdAt"`
	TargetPath  string    `json:"targetPath"`
}

// ToInfo drops everything but the listing fields.
func (r *Run) ToInfo() RunInfo {
	return RunInfo{
		ID:          r.ID,
		Method:      r.Method,
		SSIM:        r.SSIM,
		Verdict:     r.Verdict,
		Publishable: r.Publishable,
		CreatedAt:   r.CreatedAt,
		TargetPath:  r.TargetPath,
	}
}

// Validate checks that the record is complete enough to be stored.
func (r *Run) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Method == "" {
		return &ValidationError{Field: "Method", Reason: "cannot be empty"}
	}
	if r.TargetPath == "" {
		return &ValidationError{Field: "TargetPath", Reason: "cannot be empty"}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return &ValidationError{Field: "Width/Height", Reason: "must be positive"}
	}
	if r.SSIM < -1 || r.SSIM > 1 {
		return &ValidationError{Field: "SSIM", Reason: "must be within [-1, 1]"}
	}
	if r.ElapsedSeconds < 0 {
		return &ValidationError{Field: "ElapsedSeconds", Reason: "cannot be negative"}
	}
	if r.CreatedAt.IsZero() {
		return &ValidationError{Field: "CreatedAt", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
