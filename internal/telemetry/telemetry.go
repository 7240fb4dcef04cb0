// Package telemetry periodically samples host RAM/CPU usage so the
// host can correlate dropped frames with memory pressure. The sampler
// functions are injected fields so tests can substitute fakes.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/motioncam/rawstreamer/pkg/log"
)

// Status is a point-in-time RAM/CPU usage snapshot.
type Status struct {
	CPUPercent int
	RAMPercent int
}

type cpuFunc func(context.Context, time.Duration, bool) ([]float64, error)
type ramFunc func() (*mem.VirtualMemoryStat, error)

// Sampler periodically updates a Status snapshot in the background.
type Sampler struct {
	cpu cpuFunc
	ram ramFunc

	interval time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	status Status
	once   sync.Once
}

// New returns a Sampler that polls every interval. Pass a nil logger
// to suppress error logging (e.g. in tests).
func New(interval time.Duration, logger *log.Logger) *Sampler {
	return &Sampler{
		cpu:      cpu.PercentWithContext,
		ram:      mem.VirtualMemory,
		interval: interval,
		logger:   logger,
	}
}

func (s *Sampler) update(ctx context.Context) error {
	cpuUsage, err := s.cpu(ctx, s.interval, false)
	if err != nil {
		return fmt.Errorf("telemetry: cpu usage: %w", err)
	}
	ramUsage, err := s.ram()
	if err != nil {
		return fmt.Errorf("telemetry: ram usage: %w", err)
	}

	var cpuPercent int
	if len(cpuUsage) > 0 {
		cpuPercent = int(cpuUsage[0])
	}

	s.mu.Lock()
	s.status = Status{
		CPUPercent: cpuPercent,
		RAMPercent: int(ramUsage.UsedPercent),
	}
	s.mu.Unlock()

	return nil
}

// Run updates the status snapshot on every interval tick until ctx is
// canceled. Safe to call at most once; subsequent calls are no-ops.
func (s *Sampler) Run(ctx context.Context) {
	s.once.Do(func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.update(ctx); err != nil && s.logger != nil {
					s.logger.Warn().Src("telemetry").Msgf("sample failed: %v", err)
				}
			}
		}
	})
}

// Status returns the most recent snapshot.
func (s *Sampler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
