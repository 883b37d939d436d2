package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"groupcast/internal/eventbus"
	"groupcast/internal/model"
	logx "groupcast/pkg/logx"
)

// Runner starts one execution pass for a campaign. Implemented by the
// execution engine; a fire never waits for the run to complete.
type Runner interface {
	Execute(ctx context.Context, campaignID string)
}

// Scheduler maintains the set of armed triggers, one per active
// campaign. Triggers are ephemeral: never persisted, rebuilt from the
// campaign collection at startup and after reconnect.
type Scheduler struct {
	log    logx.Logger
	loc    *time.Location
	runner Runner
	bus    eventbus.Bus

	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]cron.EntryID
	timers  map[string]*time.Timer
	vers    map[string]uint64
}

func New(loc *time.Location, runner Runner, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		log:     log,
		loc:     loc,
		runner:  runner,
		bus:     bus,
		c:       cron.New(cron.WithLocation(loc)),
		entries: map[string]cron.EntryID{},
		timers:  map[string]*time.Timer{},
		vers:    map[string]uint64{},
	}
	s.c.Start()
	return s
}

// Arm installs (or replaces) the trigger for c. Arming a non-active
// campaign is a no-op; a rejected schedule leaves the campaign
// unscheduled and is reported to the caller.
func (s *Scheduler) Arm(c model.Campaign) error {
	if c.Status != model.StatusActive {
		s.log.Debug("not arming inactive campaign", logx.String("campaign", c.ID))
		s.Disarm(c.ID)
		return nil
	}

	spec, err := Translate(c.Schedule, time.Now().In(s.loc))
	if err != nil {
		s.log.Warn("schedule rejected", logx.String("campaign", c.ID), logx.Err(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert: replace any previous trigger for the same campaign.
	s.disarmLocked(c.ID)

	switch spec.Kind {
	case TriggerCron:
		eid, err := s.c.AddFunc(spec.Spec, func() { s.fire(c.ID) })
		if err != nil {
			s.log.Error("cron register failed",
				logx.String("campaign", c.ID), logx.String("spec", spec.Spec), logx.Err(err))
			return err
		}
		s.entries[c.ID] = eid
		s.log.Info("campaign armed",
			logx.String("campaign", c.ID), logx.String("spec", spec.Spec))

	case TriggerAt:
		// Versioned one-shot: a stale timer callback from a replaced
		// trigger must not fire.
		ver := s.vers[c.ID] + 1
		s.vers[c.ID] = ver
		delay := time.Until(spec.At)
		if delay < 0 {
			delay = 0
		}
		id := c.ID
		s.timers[id] = time.AfterFunc(delay, func() {
			s.mu.Lock()
			if s.vers[id] != ver {
				s.mu.Unlock()
				return
			}
			// One-shot: disarm before running so it can never re-fire.
			delete(s.timers, id)
			delete(s.vers, id)
			s.mu.Unlock()
			s.fire(id)
		})
		s.log.Info("campaign armed",
			logx.String("campaign", c.ID), logx.Time("at", spec.At))
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeCampaignArmed, Data: c.ID})
	}
	return nil
}

// Rearm is disarm + arm; Arm already upserts.
func (s *Scheduler) Rearm(c model.Campaign) error { return s.Arm(c) }

// Disarm removes the campaign's trigger, if any. An execution already
// in progress is never interrupted.
func (s *Scheduler) Disarm(campaignID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disarmLocked(campaignID)
}

func (s *Scheduler) disarmLocked(campaignID string) bool {
	removed := false
	if eid, ok := s.entries[campaignID]; ok {
		s.c.Remove(eid)
		delete(s.entries, campaignID)
		removed = true
	}
	if t, ok := s.timers[campaignID]; ok {
		_ = t.Stop()
		delete(s.timers, campaignID)
		delete(s.vers, campaignID)
		removed = true
	}
	if removed {
		s.log.Debug("campaign disarmed", logx.String("campaign", campaignID))
	}
	return removed
}

// ArmAll arms every active campaign and returns how many triggers were
// installed. Rejected schedules are logged and skipped.
func (s *Scheduler) ArmAll(cs []model.Campaign) int {
	armed := 0
	for _, c := range cs {
		if c.Status != model.StatusActive {
			continue
		}
		if err := s.Arm(c); err == nil {
			armed++
		}
	}
	s.log.Info("campaigns armed", logx.Int("count", armed), logx.Int("total", len(cs)))
	return armed
}

// Armed returns the campaign IDs with a live trigger, sorted.
func (s *Scheduler) Armed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries)+len(s.timers))
	for id := range s.entries {
		out = append(out, id)
	}
	for id := range s.timers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stop disarms everything. In-flight executions finish naturally.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, t := range s.timers {
		_ = t.Stop()
		delete(s.timers, id)
		delete(s.vers, id)
	}
	s.entries = map[string]cron.EntryID{}
	c := s.c
	s.mu.Unlock()

	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) fire(campaignID string) {
	s.log.Debug("trigger fired", logx.String("campaign", campaignID))
	// Never block the scheduler: runs proceed concurrently, including
	// overlapping runs of the same campaign if timing coincides.
	go s.runner.Execute(context.Background(), campaignID)
}
