package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfpod/batchkit/internal/objstore"
	"github.com/perfpod/batchkit/pkg/inputs"
)

func singleRunnableJob(taskCount int) *Job {
	job := NewJob(taskCount, 1, 1)
	job.AddRunnable(Runnable{Container: &Container{
		ImageURI:   "test-image",
		Entrypoint: "test-command",
	}})
	return job
}

func TestPrepareMultitask(t *testing.T) {
	dir := t.TempDir()
	job := singleRunnableJob(3)
	tasks := []TaskArgs{
		{"task_id": 1, "param": "value1"},
		{"task_id": 2, "param": "value2"},
		{"task_id": 3, "param": "value3"},
	}

	err := PrepareMultitask(context.Background(), job, objstore.NewLocal(), dir, tasks)
	require.NoError(t, err)

	path := filepath.Join(dir, "tasks.json")
	blob, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []TaskArgs
	require.NoError(t, json.Unmarshal(blob, &got))
	require.Len(t, got, 3)
	assert.Equal(t, "value2", got[1]["param"])

	env := job.TaskGroups[0].TaskSpec.Environment
	require.NotNil(t, env)
	assert.Equal(t, path, env.Variables[inputs.ArgsPathEnv])
}

func TestPrepareMultitaskZeroValueJob(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	err := PrepareMultitask(ctx, &Job{}, objstore.NewLocal(), dir, nil)
	assert.Error(t, err)

	err = PrepareMultitaskPerRunnable(ctx, &Job{}, objstore.NewLocal(), dir, nil)
	assert.Error(t, err)
}

func TestPrepareMultitaskCountMismatch(t *testing.T) {
	job := singleRunnableJob(3)
	err := PrepareMultitask(context.Background(), job, objstore.NewLocal(), t.TempDir(), []TaskArgs{{"task_id": 1}})
	assert.Error(t, err)
}

func TestPrepareMultitaskPerRunnable(t *testing.T) {
	dir := t.TempDir()
	job := NewJob(2, 1, 1)
	job.AddRunnable(Runnable{Container: &Container{ImageURI: "test-image-1", Entrypoint: "test-command-1"}})
	job.AddRunnable(Runnable{Container: &Container{ImageURI: "test-image-2", Entrypoint: "test-command-2"}})

	runnableTasks := [][]TaskArgs{
		{{"task1_id": "runnable1_task1"}, {"task1_id": "runnable1_task2"}},
		{{"task2_id": "runnable2_task1"}, {"task2_id": "runnable2_task2"}},
	}

	err := PrepareMultitaskPerRunnable(context.Background(), job, objstore.NewLocal(), dir, runnableTasks)
	require.NoError(t, err)

	for i, wantKey := range []string{"task1_id", "task2_id"} {
		path := filepath.Join(dir, fmt.Sprintf("runnable_%d_tasks.json", i))
		blob, err := os.ReadFile(path)
		require.NoError(t, err)

		var got []TaskArgs
		require.NoError(t, json.Unmarshal(blob, &got))
		require.Len(t, got, 2)
		assert.Contains(t, got[0], wantKey)

		r := job.TaskGroups[0].TaskSpec.Runnables[i]
		require.NotNil(t, r.Environment)
		assert.Equal(t, path, r.Environment.Variables[inputs.ArgsPathEnv])
	}

	// Task-spec level env stays untouched in the per-runnable layout.
	assert.Nil(t, job.TaskGroups[0].TaskSpec.Environment)
}

func TestPrepareMultitaskPerRunnableMismatches(t *testing.T) {
	job := singleRunnableJob(2)

	// Wrong number of task lists for the runnables present.
	err := PrepareMultitaskPerRunnable(context.Background(), job, objstore.NewLocal(), t.TempDir(), [][]TaskArgs{
		{{"a": 1}, {"a": 2}},
		{{"b": 1}, {"b": 2}},
	})
	assert.Error(t, err)

	// Wrong number of entries in a task list.
	err = PrepareMultitaskPerRunnable(context.Background(), job, objstore.NewLocal(), t.TempDir(), [][]TaskArgs{
		{{"a": 1}},
	})
	assert.Error(t, err)
}
