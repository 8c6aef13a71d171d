package batch

import (
	"fmt"
)

const (
	// Exit code Batch reports when a spot VM is preempted.
	preemptionExitCode = 50001
	defaultMaxRetries  = 3

	scratchVolumeName = "job-workspace"
	defaultDiskType   = "pd-balanced"
)

// StandardJobParams collects everything NewStandardJob needs. Zero values for
// the optional fields (ScratchDir, Network, ServiceAccount, DependsOn) leave
// the corresponding policy unset.
type StandardJobParams struct {
	Region           string
	Compute          ComputeConfig
	TaskCount        int
	TaskCountPerNode int
	Parallelism      int
	Runnables        []Runnable

	ScratchDir    string
	ScratchSizeGB int

	Network        *NetworkInterface
	ServiceAccount *ServiceAccount
	DependsOn      []string
}

// NewJob returns a job with a single task group and the standard retry
// posture: up to defaultMaxRetries attempts, with an extra retry whenever a
// task dies with the spot preemption exit code.
func NewJob(taskCount, taskCountPerNode, parallelism int) *Job {
	if parallelism <= 0 {
		parallelism = 1
	}
	if taskCountPerNode <= 0 {
		taskCountPerNode = 1
	}
	return &Job{
		TaskGroups: []TaskGroup{
			{
				TaskSpec: TaskSpec{
					Runnables:     []Runnable{},
					MaxRetryCount: defaultMaxRetries,
					LifecyclePolicies: []LifecyclePolicy{
						{
							Action:          "RETRY_TASK",
							ActionCondition: ActionCondition{ExitCodes: []int{preemptionExitCode}},
						},
					},
				},
				TaskCount:        taskCount,
				TaskCountPerNode: taskCountPerNode,
				Parallelism:      parallelism,
			},
		},
	}
}

// NewStandardJob builds the common job shape: container runnables, an
// allocation policy for the requested compute, Cloud Logging output, and the
// optional scratch volume, networking, service account and dependencies.
func NewStandardJob(p StandardJobParams) (*Job, error) {
	job := NewJob(p.TaskCount, p.TaskCountPerNode, p.Parallelism)
	for _, r := range p.Runnables {
		job.AddRunnable(r)
	}
	if err := job.ApplyAllocationPolicy(p.Region, p.Compute); err != nil {
		return nil, err
	}
	job.ApplyCloudLogging()

	if p.ScratchDir != "" {
		job.AddScratchVolume(p.ScratchDir, p.ScratchSizeGB)
	}
	if p.Network != nil {
		job.AddNetworkInterface(*p.Network)
	}
	if p.ServiceAccount != nil {
		job.SetServiceAccount(*p.ServiceAccount)
	}
	job.AddDependencies(p.DependsOn)
	return job, nil
}

func (j *Job) taskSpec() *TaskSpec {
	return &j.TaskGroups[0].TaskSpec
}

// AddRunnable appends a runnable to the job's task spec.
func (j *Job) AddRunnable(r Runnable) {
	spec := j.taskSpec()
	spec.Runnables = append(spec.Runnables, r)
}

// ApplyAllocationPolicy sets machine type, provisioning model, allowed region
// and accelerators. GPU type and count must be set together.
func (j *Job) ApplyAllocationPolicy(region string, cc ComputeConfig) error {
	if (cc.AcceleratorType != "") != (cc.AcceleratorCount > 0) {
		return fmt.Errorf("accelerator type and count must be set together")
	}
	if cc.ProvisioningModel != ProvisioningSpot && cc.ProvisioningModel != ProvisioningStandard {
		return fmt.Errorf("provisioning model must be %s or %s, got %q",
			ProvisioningSpot, ProvisioningStandard, cc.ProvisioningModel)
	}

	j.AllocationPolicy = &AllocationPolicy{
		Instances: []InstancePolicyOrTemplate{
			{
				Policy: InstancePolicy{
					MachineType:       cc.MachineType,
					ProvisioningModel: cc.ProvisioningModel,
				},
			},
		},
		Location: &LocationPolicy{
			AllowedLocations: []string{"regions/" + region},
		},
	}

	if cc.AcceleratorType != "" {
		inst := &j.AllocationPolicy.Instances[0]
		inst.InstallGPUDrivers = true
		inst.Policy.Accelerators = []Accelerator{
			{Type: cc.AcceleratorType, Count: cc.AcceleratorCount},
		}
	}
	return nil
}

// ApplyCloudLogging routes task output to Cloud Logging.
func (j *Job) ApplyCloudLogging() {
	j.LogsPolicy = &LogsPolicy{Destination: "CLOUD_LOGGING"}
}

// AddScratchVolume attaches a scratch disk, mounts it at mountPath and points
// TMPDIR at it so task processes pick it up without code changes.
func (j *Job) AddScratchVolume(mountPath string, sizeGB int) {
	j.attachDisk(scratchVolumeName, sizeGB, defaultDiskType)
	j.addVolume(scratchVolumeName, mountPath)
	j.SetTaskEnv("TMPDIR", mountPath)
}

// attachDisk adds a new disk to the instance policy. Batch rejects sizes
// under a gigabyte, so the size is floored at 1.
func (j *Job) attachDisk(deviceName string, sizeGB int, diskType string) {
	if sizeGB < 1 {
		sizeGB = 1
	}
	policy := &j.AllocationPolicy.Instances[0].Policy
	policy.Disks = append(policy.Disks, AttachedDisk{
		DeviceName: deviceName,
		NewDisk:    Disk{Type: diskType, SizeGB: sizeGB},
	})
}

func (j *Job) addVolume(deviceName, mountPath string) {
	spec := j.taskSpec()
	spec.Volumes = append(spec.Volumes, Volume{
		DeviceName: deviceName,
		MountPath:  mountPath,
	})
}

// SetTaskEnv sets an environment variable for every runnable of every task.
func (j *Job) SetTaskEnv(key, value string) {
	spec := j.taskSpec()
	if spec.Environment == nil {
		spec.Environment = &Environment{Variables: map[string]string{}}
	}
	spec.Environment.Variables[key] = value
}

// AddNetworkInterface appends a network interface to the allocation policy.
func (j *Job) AddNetworkInterface(ni NetworkInterface) {
	if j.AllocationPolicy.Network == nil {
		j.AllocationPolicy.Network = &NetworkPolicy{}
	}
	j.AllocationPolicy.Network.NetworkInterfaces = append(
		j.AllocationPolicy.Network.NetworkInterfaces, ni)
}

// SetServiceAccount sets the service account VMs run as.
func (j *Job) SetServiceAccount(sa ServiceAccount) {
	j.AllocationPolicy.ServiceAccount = &sa
}

// AddDependencies makes the job wait for the named jobs to succeed. Empty
// IDs are dropped; if nothing remains the job is left unchanged.
func (j *Job) AddDependencies(jobIDs []string) {
	var ids []string
	for _, id := range jobIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	if len(j.Dependencies) == 0 {
		j.Dependencies = []Dependency{{Items: map[string]string{}}}
	}
	for _, id := range ids {
		j.Dependencies[0].Items[id] = "SUCCEEDED"
	}
}
