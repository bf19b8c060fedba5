package goSession

import (
	"context"

	"go.uber.org/zap"
)

// tickCleanup counts one GenerateRefreshToken call and, every cleanupEvery
// calls, starts DeleteExpired in the background. The run is detached from the
// caller's cancellation but keeps its values.
func (m *Manager) tickCleanup(ctx context.Context) {
	if m.cleanupEvery <= 0 {
		return
	}

	m.cleanupMu.Lock()
	m.cleanupCount++
	if m.cleanupCount < m.cleanupEvery {
		m.cleanupMu.Unlock()
		return
	}
	m.cleanupCount = 0
	if m.closed {
		m.cleanupMu.Unlock()
		return
	}
	m.cleanupWG.Add(1)
	m.cleanupMu.Unlock()

	go m.runCleanup(context.WithoutCancel(ctx))
}

func (m *Manager) runCleanup(parent context.Context) {
	defer m.cleanupWG.Done()
	defer func() {
		if r := recover(); r != nil {
			m.metrics.Inc(MetricCleanupFailure)
			m.logger.Warn("expired session cleanup panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, m.cleanupTimeout)
	defer cancel()

	m.metrics.Inc(MetricCleanupRun)
	n, err := m.store.DeleteExpired(ctx)
	if err != nil {
		m.metrics.Inc(MetricCleanupFailure)
		m.logger.Warn("expired session cleanup failed", zap.Error(err))
		return
	}
	m.metrics.Add(MetricCleanupDeleted, uint64(n))
	m.logger.Debug("expired sessions cleaned up", zap.Int64("deleted", n))
}
