// SPDX-License-Identifier: MIT

package upload

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/stationcast/stationcast/internal/log"
	"github.com/stationcast/stationcast/internal/metrics"
)

// Reaper removes abandoned upload sessions. Clients that go silent leave a
// staged directory behind; the sweep purges anything older than the TTL.
// Removal takes the manager's per-session lock, so a sweep never pulls the
// chunks out from under an in-flight finalize.
type Reaper struct {
	manager  *Manager
	ttl      time.Duration
	interval time.Duration
}

// NewReaper builds a reaper over the given manager's session store.
func NewReaper(manager *Manager, ttl, interval time.Duration) *Reaper {
	return &Reaper{manager: manager, ttl: ttl, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled. It always
// returns nil so it can run under an errgroup without tearing the daemon down.
func (r *Reaper) Run(ctx context.Context) error {
	logger := xglog.WithComponent("reaper")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := r.Sweep(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("sweep failed")
				continue
			}
			if removed > 0 {
				logger.Info().Int("removed", removed).Msg("purged stale upload sessions")
			}
		}
	}
}

// Sweep removes every staged session older than the TTL and returns how many
// were purged. Sessions with unreadable metadata fall back to directory mtime.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	logger := xglog.WithComponentFromContext(ctx, "reaper")

	ids, err := r.manager.store.SessionIDs()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-r.ttl)
	removed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if r.sweepOne(logger, id, cutoff) {
			removed++
		}
	}
	return removed, nil
}

// sweepOne purges a single session if it has expired, under the same keyed
// lock that serializes finalize and cancel for that session.
func (r *Reaper) sweepOne(logger zerolog.Logger, id string, cutoff time.Time) bool {
	mu := r.manager.lock(id)
	mu.Lock()
	defer mu.Unlock()

	created, ok := r.sessionCreatedAt(id)
	if !ok || created.After(cutoff) {
		return false
	}
	if err := r.manager.store.Remove(id); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldUploadID, id).Msg("failed to remove stale session")
		return false
	}
	r.manager.locks.Delete(id)

	metrics.SessionReaped()
	logger.Debug().Str(xglog.FieldUploadID, id).Time("created_at", created).Msg("stale session removed")
	return true
}

func (r *Reaper) sessionCreatedAt(id string) (time.Time, bool) {
	if sess, err := r.manager.store.Load(id); err == nil && !sess.CreatedAt.IsZero() {
		return sess.CreatedAt, true
	}
	// Metadata unreadable: fall back to the directory's mtime.
	info, err := os.Stat(r.manager.store.layout.SessionDir(id))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
