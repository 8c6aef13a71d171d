package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/perfpod/batchkit/internal/batch"
	"github.com/perfpod/batchkit/internal/core"
	"github.com/perfpod/batchkit/internal/gcloud"
	"github.com/perfpod/batchkit/internal/objstore"
)

// Register the job-shape flags shared by render and submit
func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().String("image", "", "container image URI")
	cmd.Flags().String("entrypoint", "", "container entrypoint")
	cmd.Flags().StringSlice("arg", nil, "container command arguments")
	cmd.Flags().String("compute", "", "compute string: machine_type[:provisioning_model][+accelerator_type[:count]]")
	cmd.Flags().String("region", "", "region the job runs in")
	cmd.Flags().Int("task-count", 1, "number of tasks")
	cmd.Flags().Int("task-count-per-node", 0, "tasks packed per node")
	cmd.Flags().Int("parallelism", 0, "tasks running at once")
	cmd.Flags().String("scratch-dir", "", "mount a scratch volume at this path (also sets TMPDIR)")
	cmd.Flags().Int("scratch-size-gb", 0, "scratch volume size in GB")
	cmd.Flags().String("network", "", "VPC network resource name")
	cmd.Flags().String("subnetwork", "", "subnetwork resource name")
	cmd.Flags().Bool("no-external-ip", false, "run VMs without external IP addresses")
	cmd.Flags().String("service-account", "", "service account email the VMs run as")
	cmd.Flags().StringSlice("scope", nil, "service account OAuth scopes")
	cmd.Flags().StringSlice("depends-on", nil, "job IDs that must succeed first")
	_ = cmd.MarkFlagRequired("image")
}

// Assemble job parameters from flags and config
func jobParamsFromFlags(cmd *cobra.Command, cfg core.Config) (batch.StandardJobParams, error) {
	var p batch.StandardJobParams

	image, _ := cmd.Flags().GetString("image")
	entrypoint, _ := cmd.Flags().GetString("entrypoint")
	cmdArgs, _ := cmd.Flags().GetStringSlice("arg")
	p.Runnables = []batch.Runnable{
		{Container: &batch.Container{ImageURI: image, Entrypoint: entrypoint, Commands: cmdArgs}},
	}

	computeStr, _ := cmd.Flags().GetString("compute")
	if computeStr == "" {
		computeStr = cfg.Compute
	}
	if computeStr == "" {
		return p, fmt.Errorf("compute config required (--compute or config file)")
	}
	cc, err := batch.ParseComputeConfig(computeStr)
	if err != nil {
		return p, err
	}
	p.Compute = cc

	p.Region, _ = cmd.Flags().GetString("region")
	if p.Region == "" {
		p.Region = cfg.Region
	}
	if p.Region == "" {
		return p, fmt.Errorf("region required (--region or config file)")
	}

	p.TaskCount, _ = cmd.Flags().GetInt("task-count")
	p.TaskCountPerNode, _ = cmd.Flags().GetInt("task-count-per-node")
	if p.TaskCountPerNode == 0 {
		p.TaskCountPerNode = cfg.Defaults.TaskCountPerNode
	}
	p.Parallelism, _ = cmd.Flags().GetInt("parallelism")
	if p.Parallelism == 0 {
		p.Parallelism = cfg.Defaults.Parallelism
	}

	p.ScratchDir, _ = cmd.Flags().GetString("scratch-dir")
	p.ScratchSizeGB, _ = cmd.Flags().GetInt("scratch-size-gb")

	network, _ := cmd.Flags().GetString("network")
	subnetwork, _ := cmd.Flags().GetString("subnetwork")
	noExternalIP, _ := cmd.Flags().GetBool("no-external-ip")
	if network != "" || subnetwork != "" || noExternalIP {
		p.Network = &batch.NetworkInterface{
			Network:             network,
			Subnetwork:          subnetwork,
			NoExternalIPAddress: noExternalIP,
		}
	}

	saEmail, _ := cmd.Flags().GetString("service-account")
	if saEmail != "" {
		scopes, _ := cmd.Flags().GetStringSlice("scope")
		p.ServiceAccount = &batch.ServiceAccount{Email: saEmail, Scopes: scopes}
	}

	p.DependsOn, _ = cmd.Flags().GetStringSlice("depends-on")
	return p, nil
}

// Render a job definition without submitting it
func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Build a job definition and print its JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := core.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			params, err := jobParamsFromFlags(cmd, cfg)
			if err != nil {
				return err
			}
			job, err := batch.NewStandardJob(params)
			if err != nil {
				return err
			}
			blob, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				fmt.Println(string(blob))
				return nil
			}
			return os.WriteFile(out, append(blob, '\n'), 0o644)
		},
	}
	addJobFlags(cmd)
	cmd.Flags().String("out", "", "write the definition to a file instead of stdout")
	return cmd
}

// Submit a job via gcloud
func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Build a job, stage task arguments, and submit through gcloud",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := core.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			params, err := jobParamsFromFlags(cmd, cfg)
			if err != nil {
				return err
			}
			job, err := batch.NewStandardJob(params)
			if err != nil {
				return err
			}

			jobID, _ := cmd.Flags().GetString("job-id")
			if jobID == "" {
				jobID = "batchkit-" + uuid.NewString()[:8]
			}

			tasksFile, _ := cmd.Flags().GetString("tasks")
			runnableFiles, _ := cmd.Flags().GetStringSlice("runnable-tasks")
			if tasksFile != "" && len(runnableFiles) > 0 {
				return fmt.Errorf("--tasks and --runnable-tasks are mutually exclusive")
			}

			ctx := cmd.Context()
			workDir := ""
			if tasksFile != "" || len(runnableFiles) > 0 {
				workDir, _ = cmd.Flags().GetString("work-dir")
				if workDir == "" {
					workDir = cfg.WorkDir
				}
				if workDir == "" {
					return fmt.Errorf("staging task arguments needs --work-dir or work_dir in config")
				}
				workDir = objstore.Join(workDir, jobID)

				store := objstore.NewLocal()
				if objstore.IsGCS(workDir) {
					store, err = objstore.New(ctx)
					if err != nil {
						return err
					}
				}
				defer store.Close()

				if tasksFile != "" {
					tasks, err := loadTaskArgs(tasksFile)
					if err != nil {
						return err
					}
					if err := batch.PrepareMultitask(ctx, job, store, workDir, tasks); err != nil {
						return err
					}
				} else {
					runnableTasks := make([][]batch.TaskArgs, 0, len(runnableFiles))
					for _, f := range runnableFiles {
						tasks, err := loadTaskArgs(f)
						if err != nil {
							return err
						}
						runnableTasks = append(runnableTasks, tasks)
					}
					if err := batch.PrepareMultitaskPerRunnable(ctx, job, store, workDir, runnableTasks); err != nil {
						return err
					}
				}
			}

			client := gcloud.New()
			if cfg.Gcloud != "" {
				client.Binary = cfg.Gcloud
			}
			if err := client.SubmitJob(ctx, job, jobID, params.Region); err != nil {
				return err
			}

			recordSubmission(cmd, cfg, core.Submission{
				ID:          uuid.NewString(),
				JobID:       jobID,
				Region:      params.Region,
				WorkDir:     workDir,
				TaskCount:   job.TaskGroups[0].TaskCount,
				SubmittedAt: time.Now(),
			})
			fmt.Printf("submitted job %s in %s\n", jobID, params.Region)
			return nil
		},
	}
	addJobFlags(cmd)
	cmd.Flags().String("job-id", "", "job ID (generated when empty)")
	cmd.Flags().String("tasks", "", "YAML/JSON file with one argument map per task")
	cmd.Flags().StringSlice("runnable-tasks", nil, "per-runnable task argument files, in runnable order")
	cmd.Flags().String("work-dir", "", "gs:// prefix or directory for staged task arguments")
	return cmd
}

// History keeping is best effort; a broken local database should not fail a
// submission that already went through.
func recordSubmission(cmd *cobra.Command, cfg core.Config, sub core.Submission) {
	st, err := core.NewStore(cfg.History)
	if err != nil {
		log.Warn().Err(err).Msg("open history store")
		return
	}
	defer st.Close()
	if err := st.RecordSubmission(cmd.Context(), sub); err != nil {
		log.Warn().Err(err).Msg("record submission")
	}
}

// List past submissions
func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List past job submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := core.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			st, err := core.NewStore(cfg.History)
			if err != nil {
				return err
			}
			defer st.Close()
			subs, err := st.ListSubmissions(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range subs {
				fmt.Printf("%s\t%s\t%d\t%s\n", s.JobID, s.Region, s.TaskCount, s.SubmittedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

// Load task argument maps from a YAML or JSON file
func loadTaskArgs(path string) ([]batch.TaskArgs, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	var tasks []batch.TaskArgs
	if err := yaml.Unmarshal(content, &tasks); err != nil {
		return nil, fmt.Errorf("parse tasks file %s: %w", path, err)
	}
	return tasks, nil
}
