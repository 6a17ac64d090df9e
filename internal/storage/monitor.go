// Package storage watches local storage consumption and gates whether
// new mutations may be queued. The check is advisory: when the platform
// cannot report usage at all, writes are allowed rather than blocked,
// since refusing every offline write over an introspection failure is
// worse than occasionally overfilling storage.
package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Status classifies how full local storage is.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusBlocked  Status = "blocked"
)

// Thresholds as a percentage of quota used. Boundaries are inclusive on
// the upper side: exactly 70% is already a warning.
const (
	warningThreshold  = 70
	criticalThreshold = 85
	blockedThreshold  = 95
)

// DefaultPollInterval is how often the monitor re-polls usage when the
// caller does not configure an interval.
const DefaultPollInterval = 30 * time.Second

// Snapshot is one observation of storage consumption. Percentage is 0
// when the quota is unknown or zero.
type Snapshot struct {
	Usage      int64
	Quota      int64
	Percentage float64
	Available  int64
}

// Status classifies this snapshot against the thresholds.
func (s Snapshot) Status() Status {
	return GetStorageStatus(s.Percentage)
}

// GetStorageStatus maps a used-percentage to a status level.
func GetStorageStatus(percentage float64) Status {
	switch {
	case percentage >= blockedThreshold:
		return StatusBlocked
	case percentage >= criticalThreshold:
		return StatusCritical
	case percentage >= warningThreshold:
		return StatusWarning
	default:
		return StatusOK
	}
}

// CanQueueMutation is the sole gate callers check before enqueuing a new
// mutation: allowed while usage sits below the blocked threshold.
func CanQueueMutation(percentage float64) bool {
	return percentage < blockedThreshold
}

// Estimator is the platform primitive reporting storage consumption.
// Implementations return an error when the host cannot measure at all.
type Estimator interface {
	Estimate(ctx context.Context) (usage, quota int64, err error)
}

// Monitor polls an Estimator and caches the latest snapshot. Concurrent
// on-demand refreshes collapse into a single estimator call.
type Monitor struct {
	est      Estimator
	logger   *slog.Logger
	interval time.Duration

	group singleflight.Group

	mu   sync.RWMutex
	last *Snapshot
}

// NewMonitor builds a monitor over the given estimator. A non-positive
// interval falls back to DefaultPollInterval.
func NewMonitor(est Estimator, logger *slog.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Monitor{
		est:      est,
		logger:   logger.With(slog.String("component", "storage-monitor")),
		interval: interval,
	}
}

// GetStorageQuota refreshes and returns the current snapshot, or nil
// when the platform primitive is unavailable or failing. Callers must
// treat nil as "unknown" and fail open.
func (m *Monitor) GetStorageQuota(ctx context.Context) *Snapshot {
	v, err, _ := m.group.Do("estimate", func() (any, error) {
		usage, quota, err := m.est.Estimate(ctx)
		if err != nil {
			return nil, err
		}

		snap := Snapshot{
			Usage:     usage,
			Quota:     quota,
			Available: quota - usage,
		}
		if quota > 0 {
			snap.Percentage = float64(usage) / float64(quota) * 100
		}

		return snap, nil
	})
	if err != nil {
		m.logger.Debug("storage estimate unavailable", slog.Any("error", err))

		return nil
	}

	snap := v.(Snapshot)

	m.mu.Lock()
	m.last = &snap
	m.mu.Unlock()

	return &snap
}

// Last returns the most recent snapshot without polling, or nil if no
// poll has succeeded yet. Staleness up to the poll interval is accepted.
func (m *Monitor) Last() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.last
}

// CanQueue reports whether a new mutation may be enqueued right now,
// refreshing the snapshot first. Unavailable storage introspection
// degrades to allowing the write.
func (m *Monitor) CanQueue(ctx context.Context) bool {
	snap := m.GetStorageQuota(ctx)
	if snap == nil {
		return true
	}

	return CanQueueMutation(snap.Percentage)
}

// Run polls on the configured interval until ctx is cancelled, logging
// status escalations. Always returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	prev := StatusOK

	for {
		if snap := m.GetStorageQuota(ctx); snap != nil {
			status := snap.Status()
			if status != prev {
				m.logStatusChange(status, snap)
				prev = status
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) logStatusChange(status Status, snap *Snapshot) {
	attrs := []any{
		slog.String("status", string(status)),
		slog.Int64("usage", snap.Usage),
		slog.Int64("quota", snap.Quota),
		slog.Float64("percentage", snap.Percentage),
	}

	switch status {
	case StatusBlocked:
		m.logger.Error("local storage full, new mutations blocked until sync", attrs...)
	case StatusCritical, StatusWarning:
		m.logger.Warn("local storage filling up", attrs...)
	case StatusOK:
		m.logger.Info("local storage back to normal", attrs...)
	}
}
