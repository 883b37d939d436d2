// Package antispam enforces the per-destination send quota.
//
// The limiter is a fixed-window counter, not a sliding window: the
// window resets wholesale once its length has elapsed, so bursts at a
// boundary can reach up to 2x the configured max. That approximation is
// accepted; the engine's inter-send pacing is the primary flood guard.
package antispam

import (
	"context"
	"sync"
	"time"

	"groupcast/internal/model"
	logx "groupcast/pkg/logx"
)

// SettingsFunc returns the current quota settings. It is consulted on
// every Allow call so runtime settings edits apply immediately.
type SettingsFunc func() (model.AntiSpamSettings, error)

type entry struct {
	count       int
	windowStart time.Time
}

// Limiter is safe for concurrent use. The check-then-increment in Allow
// is atomic under the limiter's lock, so overlapping executions of the
// same campaign cannot over-admit a destination.
type Limiter struct {
	settings SettingsFunc
	log      logx.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

func New(settings SettingsFunc, log logx.Logger) *Limiter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Limiter{
		settings: settings,
		log:      log,
		now:      time.Now,
		entries:  map[string]*entry{},
	}
}

// Allow reports whether one more send to destination fits the quota and,
// if so, counts it.
//
// Failure to read settings fails open: sending availability is
// prioritized over strict quota enforcement.
func (l *Limiter) Allow(destination string) bool {
	set, err := l.settings()
	if err != nil {
		l.log.Warn("anti-spam settings unreadable; allowing send", logx.Err(err))
		return true
	}
	if !set.Enabled {
		return true
	}
	window := time.Duration(set.IntervalMinutes) * time.Minute
	if window <= 0 || set.MaxPerGroup <= 0 {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[destination]
	if !ok {
		e = &entry{windowStart: now}
		l.entries[destination] = e
	}
	if now.Sub(e.windowStart) > window {
		e.count = 0
		e.windowStart = now
	}
	if e.count >= set.MaxPerGroup {
		l.log.Debug("anti-spam quota hit",
			logx.String("destination", destination),
			logx.Int("count", e.count),
			logx.Int("max", set.MaxPerGroup))
		return false
	}
	e.count++
	return true
}

// StartCleanup evicts entries whose window ended more than staleAfter
// ago. Eviction runs off the hot path on a fixed cadence until ctx ends.
func (l *Limiter) StartCleanup(ctx context.Context, every, staleAfter time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := l.evictStale(staleAfter); n > 0 {
					l.log.Debug("anti-spam entries evicted", logx.Int("count", n))
				}
			}
		}
	}()
}

func (l *Limiter) evictStale(staleAfter time.Duration) int {
	cutoff := l.now().Add(-staleAfter)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for dest, e := range l.entries {
		if e.windowStart.Before(cutoff) {
			delete(l.entries, dest)
			n++
		}
	}
	return n
}
