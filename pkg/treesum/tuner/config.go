package tuner

// Worker limits.
const (
	// maxWorkers caps every pool.
	maxWorkers = 64

	// minHashWorkers keeps some overlap between reads even on one core.
	minHashWorkers = 2

	// minWalkWorkers is the minimum number of directory walkers.
	// Traversal is metadata-bound and gains from parallelism on small systems.
	minWalkWorkers = 4
)

// Memory budget for hash buffers.
const (
	// DefaultChunkSize is the per-worker read buffer.
	DefaultChunkSize = 1 << 20

	// minChunkSize is the smallest buffer a low-memory system is given.
	minChunkSize = 64 << 10

	// bufferMemoryFraction is the share of available RAM hash buffers may use.
	bufferMemoryFraction = 0.05
)

// OptimalConfig is the tuned pool configuration.
type OptimalConfig struct {
	// HashWorkers is the number of files hashed concurrently.
	HashWorkers int

	// WalkWorkers is the number of directory traversal goroutines.
	WalkWorkers int

	// ChunkSize is the hasher read size per worker.
	ChunkSize int
}

// Calculate returns the configuration for resources.
//
//   - HashWorkers: NumCPU * 2, since hashing alternates between disk waits
//     and CPU work
//   - WalkWorkers: max(NumCPU, 4)
//   - every count is capped at 64
//   - when HashWorkers * ChunkSize exceeds 5% of available RAM the chunk
//     shrinks first (down to 64 KiB), then the worker count
func Calculate(resources SystemResources) OptimalConfig {
	cores := max(resources.CPUCores, 1)

	hashWorkers := min(max(cores*2, minHashWorkers), maxWorkers)
	walkWorkers := min(max(cores, minWalkWorkers), maxWorkers)
	chunk := DefaultChunkSize

	if resources.AvailableRAM > 0 {
		budget := int64(float64(resources.AvailableRAM) * bufferMemoryFraction)
		for chunk > minChunkSize && int64(hashWorkers)*int64(chunk) > budget {
			chunk /= 2
		}
		for hashWorkers > 1 && int64(hashWorkers)*int64(chunk) > budget {
			hashWorkers--
		}
	}

	return OptimalConfig{
		HashWorkers: hashWorkers,
		WalkWorkers: walkWorkers,
		ChunkSize:   chunk,
	}
}

// CalculateWithOverrides applies user overrides to the calculated config.
// Values of zero or less keep the calculated ones; overrides are still
// capped at 64 workers.
func CalculateWithOverrides(resources SystemResources, workerOverride, chunkOverride int) OptimalConfig {
	config := Calculate(resources)

	if workerOverride > 0 {
		config.HashWorkers = min(workerOverride, maxWorkers)
	}
	if chunkOverride > 0 {
		config.ChunkSize = chunkOverride
	}
	return config
}

// Auto detects resources and applies the overrides. Detection failures fall
// back to the CPU count alone.
func Auto(workerOverride, chunkOverride int) OptimalConfig {
	resources, _ := Detect()
	return CalculateWithOverrides(resources, workerOverride, chunkOverride)
}
