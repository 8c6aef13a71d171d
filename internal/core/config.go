package core

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the batchkit configuration.
type Config struct {
	// Project is the GCP project jobs are billed to.
	Project string `yaml:"project"`
	// Region jobs run in, e.g. us-central1.
	Region string `yaml:"region"`
	// WorkDir is where task-argument files are staged, a gs:// prefix or a
	// local directory.
	WorkDir string `yaml:"work_dir"`
	// Compute is the default compute string, e.g. n1-standard-8:SPOT+nvidia-tesla-t4:1.
	Compute string `yaml:"compute"`
	// Gcloud overrides the gcloud binary looked up on PATH.
	Gcloud string `yaml:"gcloud"`
	// History is the path of the local submission-history database.
	History string `yaml:"history"`

	Defaults struct {
		TaskCountPerNode int `yaml:"task_count_per_node"`
		Parallelism      int `yaml:"parallelism"`
	} `yaml:"defaults"`
}

// LoadConfig reads YAML configuration from a path. If path is empty, it resolves
// $XDG_CONFIG_HOME/batchkit/config.yaml or ~/.config/batchkit/config.yaml. A
// missing default file is not an error: flags and environment can fully
// specify a job.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	explicit := path != ""
	if path == "" {
		path = filepath.Join(configDir(), "config.yaml")
	}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
		// fall through to env overrides
	default:
		return cfg, fmt.Errorf("open config: %w", err)
	}

	if v := os.Getenv("BATCHKIT_PROJECT"); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv("BATCHKIT_REGION"); v != "" {
		cfg.Region = v
	}
	if v := os.Getenv("BATCHKIT_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}

	if cfg.History == "" {
		cfg.History = filepath.Join(configDir(), "history.db")
	}
	return cfg, nil
}

func configDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "batchkit")
}
