package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsculptor/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), serverURL)
	}
	return getJobStatus(cmd.OutOrStdout(), serverURL, args[0])
}

func getJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(w io.Writer, baseURL string) error {
	var jobs []server.Job
	if _, err := getJSON(baseURL+"/api/v1/jobs", &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Method: %s\n", job.Config.Method)
		fmt.Fprintf(w, "  Target: %s\n", job.Config.TargetPath)
		if job.State == server.StateCompleted {
			fmt.Fprintf(w, "  SSIM: %.4f (%s)\n", job.SSIM, job.Verdict)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func getJobStatus(w io.Writer, baseURL, jobID string) error {
	var status server.JobStatus
	code, err := getJSON(fmt.Sprintf("%s/api/v1/jobs/%s/status", baseURL, jobID), &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Source: %s\n", status.Config.SourcePath)
	fmt.Fprintf(w, "  Target: %s\n", status.Config.TargetPath)
	fmt.Fprintf(w, "  Method: %s\n", status.Config.Method)
	if status.Config.TargetWidth > 0 {
		fmt.Fprintf(w, "  Size: %dx%d\n", status.Config.TargetWidth, status.Config.TargetHeight)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	if status.BlocksTotal > 0 {
		fmt.Fprintf(w, "  Blocks: %d/%d\n", status.BlocksDone, status.BlocksTotal)
	}
	fmt.Fprintf(w, "  Progress: %.0f%%\n", 100*status.Progress)
	elapsed := time.Duration(status.ElapsedSeconds * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.State == server.StateCompleted {
		fmt.Fprintf(w, "  SSIM: %.4f\n", status.SSIM)
		fmt.Fprintf(w, "  Verdict: %s\n", status.Verdict)
		fmt.Fprintf(w, "  Publishable: %t\n", status.Publishable)
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}
	return nil
}
