// Package tune derives safe concurrency ceilings from host capacity.
package tune

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Hard safety ceilings. Caller overrides are clamped here no matter what the
// host looks like.
const (
	HardMaxDownloads      = 8
	HardMaxSegmentWorkers = 16
)

// LowMemoryThreshold is the total-RAM mark below which derived ceilings are
// halved.
const LowMemoryThreshold = 4 << 30 // 4 GiB

// Tuner derives concurrency ceilings from the host's core count and total
// memory. It only ever lowers a caller-configured ceiling, never raises one.
type Tuner struct {
	numCPU   int
	totalMem uint64 // bytes; 0 when unknown
}

// New returns a Tuner bound to the current host.
func New() *Tuner {
	return &Tuner{
		numCPU:   runtime.NumCPU(),
		totalMem: readTotalMemory(),
	}
}

// NewWithCapacity returns a Tuner with explicit host capacity, for callers
// that probe capacity themselves.
func NewWithCapacity(numCPU int, totalMem uint64) *Tuner {
	if numCPU < 1 {
		numCPU = 1
	}
	return &Tuner{numCPU: numCPU, totalMem: totalMem}
}

// MaxConcurrentDownloads returns the download-worker ceiling. A positive
// override is honored but clamped to HardMaxDownloads; otherwise the ceiling
// is cores/4 clamped to [1,4], halved on low-memory hosts.
func (t *Tuner) MaxConcurrentDownloads(override int) int {
	if override > 0 {
		return clamp(override, 1, HardMaxDownloads)
	}
	n := clamp(t.numCPU/4, 1, 4)
	if t.lowMemory() {
		n = clamp(n/2, 1, 2)
	}
	return n
}

// MaxSegmentWorkers returns the segment-pool ceiling. A positive override is
// honored but clamped to HardMaxSegmentWorkers; otherwise the ceiling is
// cores/2 clamped to [1,8], halved on low-memory hosts.
func (t *Tuner) MaxSegmentWorkers(override int) int {
	if override > 0 {
		return clamp(override, 1, HardMaxSegmentWorkers)
	}
	n := clamp(t.numCPU/2, 1, 8)
	if t.lowMemory() {
		n = clamp(n/2, 1, 2)
	}
	return n
}

// Lower returns ceiling reduced to limit when limit is positive and smaller.
// It never raises ceiling.
func Lower(ceiling, limit int) int {
	if limit > 0 && limit < ceiling {
		return limit
	}
	return ceiling
}

func (t *Tuner) lowMemory() bool {
	return t.totalMem > 0 && t.totalMem < LowMemoryThreshold
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// readTotalMemory reports the host's total RAM in bytes, or 0 when it cannot
// be determined. Only /proc/meminfo is consulted; on other platforms the
// low-memory halving simply does not apply.
func readTotalMemory() uint64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
