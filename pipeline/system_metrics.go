package pipeline

import (
	"fmt"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/backfill/errors"
)

// Memory assumed per worker when the inspector has no size limit.
const defaultMemoryPerWorker = 64 << 20

// Memory kept free for the rest of the system.
const memoryBuffer = 512 << 20

// DefaultWorkers returns the number of logical CPUs.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// getMemoryStats returns total and available memory in bytes.
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// calculateSafeWorkerCount recommends a worker count for the available
// memory when each worker may hold perWorker bytes.
func calculateSafeWorkerCount(available, perWorker uint64) int {
	if perWorker == 0 {
		perWorker = defaultMemoryPerWorker
	}
	if available <= memoryBuffer {
		return 1
	}
	recommended := int((available - memoryBuffer) / perWorker)
	if recommended < 1 {
		return 1
	}
	return recommended
}

// checkMemoryPressure returns a warning when the configured worker count
// exceeds what available memory supports, or "" when it does not.
func (wp *WorkerPool) checkMemoryPressure() string {
	total, available, err := getMemoryStats()
	if err != nil {
		return ""
	}
	return memoryWarning(wp.workers, total, available, uint64(wp.inspector.MaxSize))
}

func memoryWarning(workers int, total, available, perWorker uint64) string {
	recommended := calculateSafeWorkerCount(available, perWorker)
	if workers <= recommended {
		return ""
	}
	return fmt.Sprintf(
		"worker count (%d) exceeds recommended (%d) for available memory (%s of %s free)",
		workers, recommended, humanize.IBytes(available), humanize.IBytes(total))
}
