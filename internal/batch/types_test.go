package batch

import "testing"

func TestParseComputeConfig(t *testing.T) {
	cases := []struct {
		in   string
		want ComputeConfig
	}{
		{
			in: "n1-standard-8:SPOT+nvidia-tesla-t4:1",
			want: ComputeConfig{
				MachineType:       "n1-standard-8",
				ProvisioningModel: "SPOT",
				AcceleratorType:   "nvidia-tesla-t4",
				AcceleratorCount:  1,
			},
		},
		{
			in: "n1-standard-8:SPOT+nvidia-tesla-t4",
			want: ComputeConfig{
				MachineType:       "n1-standard-8",
				ProvisioningModel: "SPOT",
				AcceleratorType:   "nvidia-tesla-t4",
				AcceleratorCount:  1,
			},
		},
		{
			in: "a2-highgpu-1g:STANDARD+nvidia-tesla-a100:4",
			want: ComputeConfig{
				MachineType:       "a2-highgpu-1g",
				ProvisioningModel: "STANDARD",
				AcceleratorType:   "nvidia-tesla-a100",
				AcceleratorCount:  4,
			},
		},
		{
			in: "n1-standard-8:SPOT",
			want: ComputeConfig{
				MachineType:       "n1-standard-8",
				ProvisioningModel: "SPOT",
			},
		},
		{
			in: "n1-standard-8",
			want: ComputeConfig{
				MachineType:       "n1-standard-8",
				ProvisioningModel: "SPOT",
			},
		},
	}

	for _, tc := range cases {
		got, err := ParseComputeConfig(tc.in)
		if err != nil {
			t.Fatalf("ParseComputeConfig(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseComputeConfig(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseComputeConfigErrors(t *testing.T) {
	bad := []string{
		"",
		"invalid+format+string",
		"invalid:format:string",
		"n1-standard-4:SPOT+gpu:1:1",
		"n1-standard-4:SPOT+gpu:x",
		"+nvidia-tesla-t4:1",
	}
	for _, in := range bad {
		if _, err := ParseComputeConfig(in); err == nil {
			t.Errorf("ParseComputeConfig(%q) succeeded, want error", in)
		}
	}
}
