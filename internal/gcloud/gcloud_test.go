package gcloud

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfpod/batchkit/internal/batch"
)

// fakeRunner captures the command and snapshots the config file before
// SubmitJob removes it.
type fakeRunner struct {
	name   string
	args   []string
	config []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.name = name
	f.args = args
	if len(args) > 0 {
		if blob, err := os.ReadFile(args[len(args)-1]); err == nil {
			f.config = blob
		}
	}
	return f.err
}

func testJob(t *testing.T) *batch.Job {
	t.Helper()
	job := batch.NewJob(1, 1, 1)
	job.AddRunnable(batch.Runnable{Container: &batch.Container{
		ImageURI:   "test-image",
		Entrypoint: "test-command",
	}})
	return job
}

func TestSubmitJob(t *testing.T) {
	runner := &fakeRunner{}
	client := &Client{Runner: runner}
	job := testJob(t)

	err := client.SubmitJob(context.Background(), job, "test-job-id", "us-central1")
	require.NoError(t, err)

	assert.Equal(t, "gcloud", runner.name)
	require.Len(t, runner.args, 8)
	assert.Equal(t, []string{"batch", "jobs", "submit", "test-job-id", "--location", "us-central1", "--config"}, runner.args[:7])

	// The config file existed during the run and held the job definition.
	var got batch.Job
	require.NoError(t, json.Unmarshal(runner.config, &got))
	assert.Equal(t, job, &got)

	// And is cleaned up afterwards.
	_, statErr := os.Stat(runner.args[7])
	assert.True(t, os.IsNotExist(statErr))
}

func TestSubmitJobBinaryOverride(t *testing.T) {
	runner := &fakeRunner{}
	client := &Client{Binary: "/opt/gcloud/bin/gcloud", Runner: runner}

	err := client.SubmitJob(context.Background(), testJob(t), "test-job-id", "us-central1")
	require.NoError(t, err)
	assert.Equal(t, "/opt/gcloud/bin/gcloud", runner.name)
}

func TestSubmitJobZeroValueClient(t *testing.T) {
	// A zero-value Client falls back to the real runner instead of
	// panicking; a bogus binary path keeps the test off any installed gcloud.
	client := &Client{Binary: filepath.Join(t.TempDir(), "gcloud")}

	err := client.SubmitJob(context.Background(), testJob(t), "test-job-id", "us-central1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test-job-id")
}

func TestSubmitJobRunnerError(t *testing.T) {
	boom := errors.New("permission denied")
	client := &Client{Runner: &fakeRunner{err: boom}}

	err := client.SubmitJob(context.Background(), testJob(t), "test-job-id", "us-central1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "test-job-id")
}
