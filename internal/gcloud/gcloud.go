// Package gcloud submits Batch jobs by shelling out to the gcloud CLI.
package gcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/perfpod/batchkit/internal/batch"
)

// DefaultBinary is the gcloud executable looked up on PATH.
const DefaultBinary = "gcloud"

// Runner executes an external command. Tests substitute it to capture argv.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Client submits jobs through the gcloud CLI.
type Client struct {
	Binary string
	Runner Runner
}

func New() *Client {
	return &Client{Binary: DefaultBinary, Runner: execRunner{}}
}

// SubmitJob writes the job definition to a temporary config file and runs
//
//	gcloud batch jobs submit <jobID> --location <region> --config <file>
//
// Stdout is discarded; stderr surfaces in the returned error.
func (c *Client) SubmitJob(ctx context.Context, job *batch.Job, jobID, region string) error {
	blob, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job definition: %w", err)
	}

	cfg, err := os.CreateTemp("", "batchkit-job-*.json")
	if err != nil {
		return fmt.Errorf("create job config file: %w", err)
	}
	defer os.Remove(cfg.Name())
	if _, err := cfg.Write(blob); err != nil {
		cfg.Close()
		return fmt.Errorf("write job config file: %w", err)
	}
	if err := cfg.Close(); err != nil {
		return fmt.Errorf("write job config file: %w", err)
	}

	bin := c.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	runner := c.Runner
	if runner == nil {
		runner = execRunner{}
	}
	args := []string{"batch", "jobs", "submit", jobID, "--location", region, "--config", cfg.Name()}
	log.Info().Str("job_id", jobID).Str("region", region).Msg("submitting job")
	if err := runner.Run(ctx, bin, args...); err != nil {
		return fmt.Errorf("submit job %s: %w", jobID, err)
	}
	return nil
}
