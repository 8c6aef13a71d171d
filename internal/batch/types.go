package batch

import (
	"fmt"
	"strconv"
	"strings"
)

// Job mirrors the Cloud Batch v1 job schema, restricted to the fields this
// tool sets. The JSON form is what `gcloud batch jobs submit --config` expects.
type Job struct {
	TaskGroups       []TaskGroup       `json:"taskGroups"`
	AllocationPolicy *AllocationPolicy `json:"allocationPolicy,omitempty"`
	LogsPolicy       *LogsPolicy       `json:"logsPolicy,omitempty"`
	Dependencies     []Dependency      `json:"dependencies,omitempty"`
}

type TaskGroup struct {
	TaskSpec         TaskSpec `json:"taskSpec"`
	TaskCount        int      `json:"taskCount"`
	TaskCountPerNode int      `json:"taskCountPerNode"`
	Parallelism      int      `json:"parallelism"`
}

type TaskSpec struct {
	Runnables         []Runnable        `json:"runnables"`
	MaxRetryCount     int               `json:"maxRetryCount"`
	LifecyclePolicies []LifecyclePolicy `json:"lifecyclePolicies,omitempty"`
	Environment       *Environment      `json:"environment,omitempty"`
	Volumes           []Volume          `json:"volumes,omitempty"`
}

type LifecyclePolicy struct {
	Action          string          `json:"action"`
	ActionCondition ActionCondition `json:"actionCondition"`
}

type ActionCondition struct {
	ExitCodes []int `json:"exitCodes"`
}

// Runnable is one step of a task. Only container runnables are supported.
type Runnable struct {
	Container   *Container   `json:"container,omitempty"`
	Environment *Environment `json:"environment,omitempty"`
}

type Container struct {
	ImageURI   string   `json:"imageUri"`
	Entrypoint string   `json:"entrypoint,omitempty"`
	Commands   []string `json:"commands,omitempty"`
}

type Environment struct {
	Variables map[string]string `json:"variables"`
}

type Volume struct {
	DeviceName string `json:"deviceName"`
	MountPath  string `json:"mountPath"`
}

type AllocationPolicy struct {
	Instances      []InstancePolicyOrTemplate `json:"instances"`
	Location       *LocationPolicy            `json:"location,omitempty"`
	Network        *NetworkPolicy             `json:"network,omitempty"`
	ServiceAccount *ServiceAccount            `json:"serviceAccount,omitempty"`
}

type InstancePolicyOrTemplate struct {
	Policy            InstancePolicy `json:"policy"`
	InstallGPUDrivers bool           `json:"installGpuDrivers,omitempty"`
}

type InstancePolicy struct {
	MachineType       string         `json:"machineType"`
	ProvisioningModel string         `json:"provisioningModel"`
	Accelerators      []Accelerator  `json:"accelerators,omitempty"`
	Disks             []AttachedDisk `json:"disks,omitempty"`
}

type Accelerator struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type AttachedDisk struct {
	DeviceName string `json:"deviceName"`
	NewDisk    Disk   `json:"newDisk"`
}

type Disk struct {
	Type   string `json:"type"`
	SizeGB int    `json:"sizeGb"`
}

type LocationPolicy struct {
	AllowedLocations []string `json:"allowedLocations"`
}

type NetworkPolicy struct {
	NetworkInterfaces []NetworkInterface `json:"networkInterfaces"`
}

type NetworkInterface struct {
	Network             string `json:"network,omitempty"`
	Subnetwork          string `json:"subnetwork,omitempty"`
	NoExternalIPAddress bool   `json:"noExternalIpAddress,omitempty"`
}

type ServiceAccount struct {
	Email  string   `json:"email,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

type LogsPolicy struct {
	Destination string `json:"destination"`
}

type Dependency struct {
	Items map[string]string `json:"items"`
}

// Provisioning models accepted by ApplyAllocationPolicy.
const (
	ProvisioningSpot     = "SPOT"
	ProvisioningStandard = "STANDARD"
)

// ComputeConfig describes the machine shape a job runs on.
type ComputeConfig struct {
	MachineType       string
	ProvisioningModel string
	AcceleratorType   string
	AcceleratorCount  int
}

// ParseComputeConfig parses the compact form
//
//	machine_type[:provisioning_model][+accelerator_type[:count]]
//
// The provisioning model defaults to SPOT. An accelerator type without a
// count means one accelerator; no accelerator part means none.
func ParseComputeConfig(s string) (ComputeConfig, error) {
	parts := strings.Split(s, "+")
	switch {
	case len(parts) == 1:
		parts = append(parts, "")
	case len(parts) > 2:
		return ComputeConfig{}, fmt.Errorf("invalid compute config %q: at most one accelerator part", s)
	}
	if parts[0] == "" {
		return ComputeConfig{}, fmt.Errorf("invalid compute config %q: machine type is required", s)
	}

	machineType := ""
	provisioning := ProvisioningSpot
	machineParts := strings.Split(parts[0], ":")
	switch len(machineParts) {
	case 1:
		machineType = machineParts[0]
	case 2:
		machineType = machineParts[0]
		if machineParts[1] != "" {
			provisioning = machineParts[1]
		}
	default:
		return ComputeConfig{}, fmt.Errorf("invalid machine type/provisioning model %q", parts[0])
	}

	accelType := ""
	accelCount := 0
	accelParts := strings.Split(parts[1], ":")
	switch len(accelParts) {
	case 1:
		accelType = accelParts[0]
		if accelType != "" {
			accelCount = 1
		}
	case 2:
		accelType = accelParts[0]
		if accelParts[1] != "" {
			n, err := strconv.Atoi(accelParts[1])
			if err != nil {
				return ComputeConfig{}, fmt.Errorf("invalid accelerator count %q: %w", accelParts[1], err)
			}
			accelCount = n
		}
		if accelCount > 0 && accelType == "" {
			return ComputeConfig{}, fmt.Errorf("invalid compute config %q: accelerator count without type", s)
		}
	default:
		return ComputeConfig{}, fmt.Errorf("invalid accelerator type/count %q", parts[1])
	}

	return ComputeConfig{
		MachineType:       machineType,
		ProvisioningModel: provisioning,
		AcceleratorType:   accelType,
		AcceleratorCount:  accelCount,
	}, nil
}
