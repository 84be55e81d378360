package store

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/cwbudde/pixelsculptor/internal/imageio"
)

// FSStore implements Store on the filesystem. Each run lives in
// <baseDir>/runs/<runID>/.
//
// Writes go through temp file + rename, so no locks are needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem store, creating baseDir if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the store root.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) runDir(runID string) string {
	return filepath.Join(fs.baseDir, "runs", runID)
}

func (fs *FSStore) runPath(runID string) string {
	return filepath.Join(fs.runDir(runID), "run.json")
}

// SaveRun validates run and writes it atomically.
func (fs *FSStore) SaveRun(run *Run) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if err := run.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(fs.runDir(run.ID), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	finalPath := fs.runPath(run.ID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp run file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename run file: %w", err)
	}

	slog.Debug("Run saved", "runID", run.ID, "path", finalPath)
	return nil
}

// LoadRun reads a run record.
func (fs *FSStore) LoadRun(runID string) (*Run, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	data, err := os.ReadFile(fs.runPath(runID))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to deserialize run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the metadata of every readable run, oldest first.
// Directories without a run.json and corrupted records are skipped.
func (fs *FSStore) ListRuns() ([]RunInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return []RunInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RunInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(fs.runPath(entry.Name())); os.IsNotExist(err) {
			continue
		}

		run, err := fs.LoadRun(entry.Name())
		if err != nil {
			slog.Warn("Failed to load run for listing", "runID", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, run.ToInfo())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	slog.Debug("Listed runs", "count", len(infos))
	return infos, nil
}

// DeleteRun removes the whole run directory.
func (fs *FSStore) DeleteRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	dir := fs.runDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Run deleted", "runID", runID, "path", dir)
	return nil
}

// SaveImage writes img as a PNG into the run directory and records its name
// on the stored run, if one exists.
func (fs *FSStore) SaveImage(runID, name string, img image.Image) error {
	if runID == "" || name == "" {
		return fmt.Errorf("runID and name cannot be empty")
	}
	if err := imageio.SavePNG(fs.ImagePath(runID, name), img); err != nil {
		return err
	}

	run, err := fs.LoadRun(runID)
	if err != nil {
		// Images may be written before the record.
		return nil
	}
	if !slices.Contains(run.Images, name) {
		run.Images = append(run.Images, name)
		return fs.SaveRun(run)
	}
	return nil
}

// ImagePath returns <baseDir>/runs/<runID>/<name>.png.
func (fs *FSStore) ImagePath(runID, name string) string {
	return filepath.Join(fs.runDir(runID), name+".png")
}
