package server

import (
	"image"
	"image/color"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/pixelsculptor/internal/imageio"
	"github.com/cwbudde/pixelsculptor/internal/pipeline"
	"github.com/cwbudde/pixelsculptor/internal/quality"
	"github.com/cwbudde/pixelsculptor/internal/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPipeline() *pipeline.Pipeline {
	opts := transport.DefaultOptions()
	opts.Block.Workers = 2
	return pipeline.New(pipeline.Config{
		Options:      opts,
		Thresholds:   quality.DefaultThresholds(),
		TargetWidth:  16,
		TargetHeight: 16,
		Logger:       quietLogger(),
	})
}

// createTestImages writes a red source and a blue target and returns their
// paths.
func createTestImages(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return writeSolid(t, filepath.Join(dir, "source.png"), color.NRGBA{255, 0, 0, 255}),
		writeSolid(t, filepath.Join(dir, "target.png"), color.NRGBA{0, 0, 255, 255})
}

func writeSolid(t *testing.T, path string, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	if err := imageio.SavePNG(path, img); err != nil {
		t.Fatalf("Failed to write test image: %v", err)
	}
	return path
}

// waitForState polls until the job reaches a final state.
func waitForState(t *testing.T, jm *JobManager, id string) Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := jm.GetJob(id)
		if !ok {
			t.Fatalf("Job %s disappeared", id)
		}
		if job.State.Done() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish in time", id)
	return Job{}
}
