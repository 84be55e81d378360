package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/pixelsculptor/internal/pipeline"
	"github.com/cwbudde/pixelsculptor/internal/transport"
)

// runJob executes a transport job through p. The solve itself is
// synchronous; ctx is checked before it starts and after it returns.
func runJob(ctx context.Context, jm *JobManager, p *pipeline.Pipeline, logger *slog.Logger, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if ctx.Err() != nil {
		markJobCancelled(jm, logger, jobID)
		return ctx.Err()
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}

	logger.Info("Starting job", "job_id", jobID, "method", job.Config.Method, "target", job.Config.TargetPath)

	res, err := p.Run(ctx, pipeline.Request{
		RunID:        jobID,
		SourcePath:   job.Config.SourcePath,
		TargetPath:   job.Config.TargetPath,
		Method:       transport.Method(job.Config.Method),
		TargetWidth:  job.Config.TargetWidth,
		TargetHeight: job.Config.TargetHeight,
		OnBlock: func(done, total int) {
			jm.UpdateJob(jobID, func(j *Job) {
				j.BlocksDone = done
				j.BlocksTotal = total
			})
		},
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || (err == nil && ctx.Err() != nil) {
		markJobCancelled(jm, logger, jobID)
		return ctx.Err()
	}
	if err != nil {
		markJobFailed(jm, logger, jobID, err)
		return err
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.SSIM = res.SSIM
		j.Verdict = string(res.Verdict)
		j.Publishable = res.Publishable
		j.target = res.Target
		j.result = res.Transformed
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	logger.Info("Job completed",
		"job_id", jobID,
		"elapsed", res.Elapsed,
		"ssim", res.SSIM,
		"verdict", res.Verdict,
	)
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, logger *slog.Logger, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	logger.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, logger *slog.Logger, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	logger.Info("Job cancelled", "job_id", jobID)
}
