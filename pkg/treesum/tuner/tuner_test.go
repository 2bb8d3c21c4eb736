package tuner

import (
	"runtime"
	"testing"
)

func TestDetect(t *testing.T) {
	resources, err := Detect()
	if err != nil {
		t.Fatalf("Detect() returned error: %v", err)
	}

	if resources.CPUCores != runtime.NumCPU() {
		t.Errorf("CPUCores = %d, want %d (runtime.NumCPU())", resources.CPUCores, runtime.NumCPU())
	}

	minRAM := int64(64 * 1024 * 1024)
	if resources.TotalRAM < minRAM {
		t.Errorf("TotalRAM = %d bytes, want >= %d bytes", resources.TotalRAM, minRAM)
	}

	if resources.AvailableRAM <= 0 {
		t.Errorf("AvailableRAM = %d, want > 0", resources.AvailableRAM)
	}
	if resources.AvailableRAM > resources.TotalRAM {
		t.Errorf("AvailableRAM (%d) > TotalRAM (%d)", resources.AvailableRAM, resources.TotalRAM)
	}
}

func TestCalculate(t *testing.T) {
	const GiB = int64(1 << 30)

	tests := []struct {
		name      string
		resources SystemResources
		want      OptimalConfig
	}{
		{
			name:      "single core, plenty of memory",
			resources: SystemResources{CPUCores: 1, TotalRAM: 8 * GiB, AvailableRAM: 4 * GiB},
			want:      OptimalConfig{HashWorkers: 2, WalkWorkers: 4, ChunkSize: DefaultChunkSize},
		},
		{
			name:      "eight cores",
			resources: SystemResources{CPUCores: 8, TotalRAM: 16 * GiB, AvailableRAM: 8 * GiB},
			want:      OptimalConfig{HashWorkers: 16, WalkWorkers: 8, ChunkSize: DefaultChunkSize},
		},
		{
			name:      "many cores are capped",
			resources: SystemResources{CPUCores: 128, TotalRAM: 512 * GiB, AvailableRAM: 256 * GiB},
			want:      OptimalConfig{HashWorkers: 64, WalkWorkers: 64, ChunkSize: DefaultChunkSize},
		},
		{
			name:      "unknown memory keeps defaults",
			resources: SystemResources{CPUCores: 4},
			want:      OptimalConfig{HashWorkers: 8, WalkWorkers: 4, ChunkSize: DefaultChunkSize},
		},
		{
			// 5% of 64 MiB is ~3.2 MiB: 16 workers shrink the chunk to 128 KiB.
			name:      "low memory shrinks the chunk",
			resources: SystemResources{CPUCores: 8, TotalRAM: 128 << 20, AvailableRAM: 64 << 20},
			want:      OptimalConfig{HashWorkers: 16, WalkWorkers: 8, ChunkSize: 128 << 10},
		},
		{
			// 5% of 8 MiB is ~409 KiB: the chunk bottoms out and workers drop to 6.
			name:      "very low memory drops workers",
			resources: SystemResources{CPUCores: 8, TotalRAM: 16 << 20, AvailableRAM: 8 << 20},
			want:      OptimalConfig{HashWorkers: 6, WalkWorkers: 8, ChunkSize: 64 << 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.resources)
			if got != tt.want {
				t.Errorf("Calculate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalculateWithOverrides(t *testing.T) {
	resources := SystemResources{CPUCores: 4, TotalRAM: 8 << 30, AvailableRAM: 4 << 30}

	got := CalculateWithOverrides(resources, 3, 4096)
	if got.HashWorkers != 3 || got.ChunkSize != 4096 {
		t.Errorf("overrides not applied: %+v", got)
	}

	got = CalculateWithOverrides(resources, 1000, 0)
	if got.HashWorkers != 64 {
		t.Errorf("HashWorkers = %d, want cap 64", got.HashWorkers)
	}
	if got.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want default", got.ChunkSize)
	}

	got = CalculateWithOverrides(resources, 0, 0)
	if got != Calculate(resources) {
		t.Errorf("zero overrides changed the config: %+v", got)
	}
}

func TestAuto(t *testing.T) {
	got := Auto(0, 0)
	if got.HashWorkers < 1 || got.WalkWorkers < 1 || got.ChunkSize < 1 {
		t.Errorf("Auto() = %+v, want positive values", got)
	}
}
