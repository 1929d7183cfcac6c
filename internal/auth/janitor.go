// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// DefaultSweepInterval is how often the janitor purges expired sessions.
const DefaultSweepInterval = time.Hour

// Janitor periodically deletes expired sessions. Expired sessions already
// resolve as unauthenticated; the janitor only reclaims storage.
type Janitor struct {
	sessions SessionRepository
	interval time.Duration
	logger   *slog.Logger
	onPurge  func(int64)
}

// NewJanitor creates a Janitor. A non-positive interval falls back to
// DefaultSweepInterval.
func NewJanitor(sessions SessionRepository, interval time.Duration, logger *slog.Logger) (*Janitor, error) {
	if sessions == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("sessions repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Janitor{sessions: sessions, interval: interval, logger: logger}, nil
}

// OnPurge registers a callback invoked with the number of sessions removed
// by each sweep that deletes at least one. Must be called before Run.
func (j *Janitor) OnPurge(fn func(int64)) {
	j.onPurge = fn
}

// Run sweeps once immediately, then on every interval tick until the context
// is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		j.logger.Warn("expired session sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		j.logger.Info("expired sessions purged", "count", deleted)
		if j.onPurge != nil {
			j.onPurge(deleted)
		}
	}
}
