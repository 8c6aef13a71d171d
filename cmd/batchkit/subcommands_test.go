package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/perfpod/batchkit/internal/core"
)

func TestLoadTaskArgsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	content := "- sample: s1\n  shards: 4\n- sample: s2\n  shards: 8\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tasks, err := loadTaskArgs(path)
	if err != nil {
		t.Fatalf("loadTaskArgs failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0]["sample"] != "s1" || tasks[1]["shards"] != 8 {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestLoadTaskArgsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(`[{"sample": "s1"}, {"sample": "s2"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	tasks, err := loadTaskArgs(path)
	if err != nil {
		t.Fatalf("loadTaskArgs failed: %v", err)
	}
	if len(tasks) != 2 || tasks[1]["sample"] != "s2" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestLoadTaskArgsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	if err := os.WriteFile(path, []byte("not: a: list"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadTaskArgs(path); err == nil {
		t.Fatal("loadTaskArgs accepted a non-list file, want error")
	}
}

func TestJobParamsFromFlags(t *testing.T) {
	cmd := newRenderCmd()
	err := cmd.Flags().Parse([]string{
		"--image", "gcr.io/p/img",
		"--entrypoint", "run",
		"--arg", "a", "--arg", "b",
		"--compute", "n1-standard-8:STANDARD+nvidia-tesla-t4:2",
		"--region", "us-central1",
		"--task-count", "5",
		"--parallelism", "3",
		"--network", "projects/p/global/networks/n",
		"--no-external-ip",
		"--service-account", "sa@p.iam.gserviceaccount.com",
		"--depends-on", "job-0",
	})
	if err != nil {
		t.Fatalf("flag parse failed: %v", err)
	}

	p, err := jobParamsFromFlags(cmd, core.Config{})
	if err != nil {
		t.Fatalf("jobParamsFromFlags failed: %v", err)
	}
	if p.Compute.MachineType != "n1-standard-8" || p.Compute.AcceleratorCount != 2 {
		t.Errorf("Compute = %+v", p.Compute)
	}
	if p.Compute.ProvisioningModel != "STANDARD" {
		t.Errorf("ProvisioningModel = %q", p.Compute.ProvisioningModel)
	}
	if p.TaskCount != 5 || p.Parallelism != 3 {
		t.Errorf("TaskCount=%d Parallelism=%d", p.TaskCount, p.Parallelism)
	}
	if p.Network == nil || !p.Network.NoExternalIPAddress {
		t.Errorf("Network = %+v", p.Network)
	}
	if p.ServiceAccount == nil || p.ServiceAccount.Email != "sa@p.iam.gserviceaccount.com" {
		t.Errorf("ServiceAccount = %+v", p.ServiceAccount)
	}
	if len(p.Runnables) != 1 || p.Runnables[0].Container.ImageURI != "gcr.io/p/img" {
		t.Errorf("Runnables = %+v", p.Runnables)
	}
}

func TestJobParamsFromFlagsConfigFallback(t *testing.T) {
	cmd := newRenderCmd()
	if err := cmd.Flags().Parse([]string{"--image", "gcr.io/p/img"}); err != nil {
		t.Fatal(err)
	}

	cfg := core.Config{Region: "europe-west4", Compute: "n1-standard-1"}
	cfg.Defaults.Parallelism = 2
	cfg.Defaults.TaskCountPerNode = 2

	p, err := jobParamsFromFlags(cmd, cfg)
	if err != nil {
		t.Fatalf("jobParamsFromFlags failed: %v", err)
	}
	if p.Region != "europe-west4" {
		t.Errorf("Region = %q, want config fallback", p.Region)
	}
	if p.Compute.MachineType != "n1-standard-1" {
		t.Errorf("MachineType = %q, want config fallback", p.Compute.MachineType)
	}
	if p.Parallelism != 2 || p.TaskCountPerNode != 2 {
		t.Errorf("Parallelism=%d TaskCountPerNode=%d, want config defaults", p.Parallelism, p.TaskCountPerNode)
	}
}

func TestJobParamsFromFlagsMissingCompute(t *testing.T) {
	cmd := newRenderCmd()
	if err := cmd.Flags().Parse([]string{"--image", "gcr.io/p/img", "--region", "us-central1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := jobParamsFromFlags(cmd, core.Config{}); err == nil {
		t.Fatal("jobParamsFromFlags succeeded without compute config, want error")
	}
}
