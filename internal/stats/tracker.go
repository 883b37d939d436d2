// Package stats aggregates send outcomes into daily and lifetime
// counters, persisted read-modify-write through the statistics
// collection.
package stats

import (
	"context"
	"sync"
	"time"

	"groupcast/internal/model"
	"groupcast/internal/store"
	logx "groupcast/pkg/logx"
)

const dayFormat = "2006-01-02"

// Tracker is safe for concurrent use; the read-modify-write against the
// statistics collection is serialized under its lock.
type Tracker struct {
	st  store.Store
	log logx.Logger
	loc *time.Location
	now func() time.Time

	mu sync.Mutex
}

func New(st store.Store, loc *time.Location, log logx.Logger) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{st: st, log: log, loc: loc, now: time.Now}
}

// RecordSent adds n to the lifetime and current-day sent counters.
func (t *Tracker) RecordSent(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	t.update(ctx, func(s *model.Statistics, d *model.DayStats) {
		s.TotalSent += n
		d.Sent += n
	})
}

// RecordFailed adds n to the lifetime and current-day failed counters.
func (t *Tracker) RecordFailed(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	t.update(ctx, func(s *model.Statistics, d *model.DayStats) {
		s.TotalFailed += n
		d.Failed += n
	})
}

// RecordGroups stores the current destination count. Unlike the send
// counters this is a last-write snapshot, not a running total.
func (t *Tracker) RecordGroups(ctx context.Context, n int) {
	if n < 0 {
		return
	}
	t.update(ctx, func(s *model.Statistics, d *model.DayStats) {
		s.TotalGroups = n
		d.Groups = n
	})
}

// RecordCampaignCreated bumps the lifetime campaign-creation counter.
func (t *Tracker) RecordCampaignCreated(ctx context.Context) {
	t.update(ctx, func(s *model.Statistics, _ *model.DayStats) {
		s.CampaignsCreated++
	})
}

// Snapshot returns the persisted statistics.
func (t *Tracker) Snapshot(ctx context.Context) (model.Statistics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st.LoadStatistics(ctx)
}

func (t *Tracker) update(ctx context.Context, mutate func(*model.Statistics, *model.DayStats)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.st.LoadStatistics(ctx)
	if err != nil {
		t.log.Error("statistics load failed; update dropped", logx.Err(err))
		return
	}
	if s.Daily == nil {
		s.Daily = map[string]model.DayStats{}
	}
	key := t.now().In(t.loc).Format(dayFormat)
	day := s.Daily[key]

	mutate(&s, &day)
	s.Daily[key] = day

	if err := t.st.SaveStatistics(ctx, s); err != nil {
		t.log.Error("statistics save failed", logx.Err(err))
	}
}
