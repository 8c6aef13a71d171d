package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/perfpod/batchkit/internal/objstore"
	"github.com/perfpod/batchkit/pkg/inputs"
)

// TaskArgs is one task's argument map. The values must be JSON-encodable.
type TaskArgs map[string]any

var errNoTaskGroups = errors.New("job has no task groups")

// PrepareMultitask stages one argument entry per task as a JSON array at
// <workDir>/tasks.json and points every task at it through the
// BATCHKIT_ARGS_PATH task environment variable. Workers combine that with
// their BATCH_TASK_INDEX to pick their own entry.
func PrepareMultitask(ctx context.Context, job *Job, store *objstore.Store, workDir string, tasks []TaskArgs) error {
	if len(job.TaskGroups) == 0 {
		return errNoTaskGroups
	}
	if n := job.TaskGroups[0].TaskCount; len(tasks) != n {
		return fmt.Errorf("got %d task argument entries for a job with %d tasks", len(tasks), n)
	}
	uri := objstore.Join(workDir, "tasks.json")
	if err := stageTasks(ctx, store, uri, tasks); err != nil {
		return err
	}
	job.SetTaskEnv(inputs.ArgsPathEnv, uri)
	return nil
}

// PrepareMultitaskPerRunnable stages a separate argument file per runnable,
// <workDir>/runnable_<i>_tasks.json, and sets BATCHKIT_ARGS_PATH on each
// runnable individually. runnableTasks[i][j] holds the arguments for
// runnable i in task j.
func PrepareMultitaskPerRunnable(ctx context.Context, job *Job, store *objstore.Store, workDir string, runnableTasks [][]TaskArgs) error {
	if len(job.TaskGroups) == 0 {
		return errNoTaskGroups
	}
	spec := job.taskSpec()
	if len(runnableTasks) != len(spec.Runnables) {
		return fmt.Errorf("got %d task lists for a job with %d runnables", len(runnableTasks), len(spec.Runnables))
	}
	taskCount := job.TaskGroups[0].TaskCount
	for i, tasks := range runnableTasks {
		if len(tasks) != taskCount {
			return fmt.Errorf("runnable %d: got %d task argument entries for a job with %d tasks", i, len(tasks), taskCount)
		}
	}

	for i, tasks := range runnableTasks {
		uri := objstore.Join(workDir, fmt.Sprintf("runnable_%d_tasks.json", i))
		if err := stageTasks(ctx, store, uri, tasks); err != nil {
			return err
		}
		r := &spec.Runnables[i]
		if r.Environment == nil {
			r.Environment = &Environment{Variables: map[string]string{}}
		}
		r.Environment.Variables[inputs.ArgsPathEnv] = uri
	}
	return nil
}

func stageTasks(ctx context.Context, store *objstore.Store, uri string, tasks []TaskArgs) error {
	blob, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode task arguments: %w", err)
	}
	if err := store.Put(ctx, uri, blob); err != nil {
		return fmt.Errorf("stage task arguments: %w", err)
	}
	log.Debug().Str("uri", uri).Int("tasks", len(tasks)).Msg("staged task arguments")
	return nil
}
