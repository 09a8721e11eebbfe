package metrics

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

const sampleInterval = time.Second

// Sampler records CPU and memory use once per second. The CPU fraction is
// system-wide, not limited to this process; the memory fraction is this
// process's resident memory over total system memory.
type Sampler struct {
	mu          sync.Mutex
	cpuFraction float64
	memFraction float64
	proc        *process.Process
}

// NewSampler creates a sampler bound to the current process.
func NewSampler() *Sampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("process handle unavailable, memory sampling disabled")
	}
	return &Sampler{proc: proc}
}

// Start launches the sampling loop; it stops when ctx is cancelled.
func (s *Sampler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()
}

// Last returns the most recent CPU and memory fractions in [0,1].
func (s *Sampler) Last() (cpuFraction, memFraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpuFraction, s.memFraction
}

// setForTest injects a sample, for alert tests.
func (s *Sampler) setForTest(cpuFraction, memFraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpuFraction = cpuFraction
	s.memFraction = memFraction
}

func (s *Sampler) sample() {
	var cpuFraction, memFraction float64

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuFraction = percents[0] / 100
	}

	if s.proc != nil {
		if info, err := s.proc.MemoryInfo(); err == nil && info != nil {
			if vm, err := mem.VirtualMemory(); err == nil && vm != nil && vm.Total > 0 {
				memFraction = float64(info.RSS) / float64(vm.Total)
			}
		}
	}

	s.mu.Lock()
	s.cpuFraction = cpuFraction
	s.memFraction = memFraction
	s.mu.Unlock()
}
