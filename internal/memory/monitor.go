package memory

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/metrics"
)

// Monitor samples available memory every interval and publishes it.
type Monitor struct {
	sampler  Sampler
	signal   *Signal
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewMonitor(sampler Sampler, signal *Signal, interval time.Duration, m *metrics.Metrics) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{
		sampler:  sampler,
		signal:   signal,
		interval: interval,
		metrics:  m,
		logger:   logger.WithComponent("memory-monitor"),
	}
}

// Run samples until ctx is cancelled. Sampling errors are logged and the
// previous value stays published.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("memory monitor started",
		"interval", m.interval,
		"min_available_bytes", m.signal.Threshold(),
	)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("memory monitor stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	free, err := m.sampler.AvailableBytes()
	if err != nil {
		m.logger.Warn("memory sample failed", "error", err)
		return
	}
	changed := m.signal.Publish(free)
	m.metrics.FreeMemoryBytes.Set(float64(free))
	low := m.signal.Low()
	if low {
		m.metrics.MemoryLow.Set(1)
	} else {
		m.metrics.MemoryLow.Set(0)
	}

	m.logger.Info("available memory", "bytes", free)
	if changed && low {
		m.logger.Warn("available memory is too low", "bytes", free, "threshold", m.signal.Threshold())
	} else if changed {
		m.logger.Info("available memory recovered", "bytes", free)
	}
}

// CheckCeiling fails with ErrMemoryCeiling when the host has more physical
// memory than maxTotal allows. maxTotal == 0 disables the check.
func CheckCeiling(sampler Sampler, maxTotal uint64) error {
	if maxTotal == 0 {
		return nil
	}
	total, err := sampler.TotalBytes()
	if err != nil {
		return apperrors.Newf(apperrors.ErrMemoryCeiling, 0, "cannot read total memory: %v", err)
	}
	if total > maxTotal {
		return apperrors.Newf(apperrors.ErrMemoryCeiling, 0, "RAM size %d > %d is not allowed", total, maxTotal)
	}
	return nil
}
