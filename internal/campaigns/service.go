// Package campaigns is the campaign surface: definition CRUD,
// status toggling, and the stats write path used by the execution
// engine. All campaign-collection writes funnel through this service so
// the read-modify-write against the whole document stays serialized.
package campaigns

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"groupcast/internal/model"
	"groupcast/internal/schedule"
	"groupcast/internal/store"
	logx "groupcast/pkg/logx"
)

var ErrNotFound = errors.New("campaign not found")

// Arming is the scheduler surface the service drives on changes.
type Arming interface {
	Arm(c model.Campaign) error
	Rearm(c model.Campaign) error
	Disarm(campaignID string) bool
	ArmAll(cs []model.Campaign) int
}

// CreatedCounter bumps the lifetime campaign-creation statistic.
type CreatedCounter interface {
	RecordCampaignCreated(ctx context.Context)
}

type Service struct {
	st    store.Store
	sched Arming
	stats CreatedCounter
	log   logx.Logger

	mu sync.Mutex
}

func New(st store.Store, sched Arming, stats CreatedCounter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{st: st, sched: sched, stats: stats, log: log}
}

// Input is the operator-provided part of a campaign definition.
type Input struct {
	Name         string         `json:"name"`
	Message      string         `json:"message"`
	ImagePath    string         `json:"image_path,omitempty"`
	Destinations []string       `json:"destinations"`
	Schedule     model.Schedule `json:"schedule"`
}

// List returns all campaigns.
func (s *Service) List(ctx context.Context) ([]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.LoadCampaigns(ctx)
}

// Get returns one campaign by id.
func (s *Service) Get(ctx context.Context, id string) (model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, id)
}

func (s *Service) getLocked(ctx context.Context, id string) (model.Campaign, error) {
	cs, err := s.st.LoadCampaigns(ctx)
	if err != nil {
		return model.Campaign{}, err
	}
	for _, c := range cs {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Campaign{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Create validates, persists and arms a new campaign. New campaigns
// start active; a schedule the translator rejects fails creation.
func (s *Service) Create(ctx context.Context, in Input) (model.Campaign, error) {
	now := time.Now()
	c := model.Campaign{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Message:      in.Message,
		ImagePath:    in.ImagePath,
		Destinations: in.Destinations,
		Schedule:     in.Schedule,
		Status:       model.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.Validate(); err != nil {
		return model.Campaign{}, err
	}
	if _, err := schedule.Translate(c.Schedule, now); err != nil {
		return model.Campaign{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.st.LoadCampaigns(ctx)
	if err != nil {
		return model.Campaign{}, err
	}
	cs = append(cs, c)
	if err := s.st.SaveCampaigns(ctx, cs); err != nil {
		return model.Campaign{}, err
	}

	if s.stats != nil {
		s.stats.RecordCampaignCreated(ctx)
	}
	if err := s.sched.Arm(c); err != nil {
		s.log.Warn("created campaign not armed", logx.String("campaign", c.ID), logx.Err(err))
	}
	s.log.Info("campaign created", logx.String("campaign", c.ID), logx.String("name", c.Name))
	return c, nil
}

// Update replaces the definition fields and rearms. Stats and status
// are untouched.
func (s *Service) Update(ctx context.Context, id string, in Input) (model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated model.Campaign
	err := s.mutate(ctx, id, func(c *model.Campaign) error {
		c.Name = in.Name
		c.Message = in.Message
		c.ImagePath = in.ImagePath
		c.Destinations = in.Destinations
		c.Schedule = in.Schedule
		c.UpdatedAt = time.Now()
		if err := c.Validate(); err != nil {
			return err
		}
		updated = *c
		return nil
	})
	if err != nil {
		return model.Campaign{}, err
	}

	if err := s.sched.Rearm(updated); err != nil {
		s.log.Warn("updated campaign not armed", logx.String("campaign", id), logx.Err(err))
	}
	return updated, nil
}

// SetStatus toggles active/paused and arms or disarms accordingly. An
// execution already in progress is never interrupted by pausing.
func (s *Service) SetStatus(ctx context.Context, id string, status model.CampaignStatus) (model.Campaign, error) {
	if status != model.StatusActive && status != model.StatusPaused {
		return model.Campaign{}, fmt.Errorf("unknown status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated model.Campaign
	err := s.mutate(ctx, id, func(c *model.Campaign) error {
		c.Status = status
		c.UpdatedAt = time.Now()
		updated = *c
		return nil
	})
	if err != nil {
		return model.Campaign{}, err
	}

	if status == model.StatusActive {
		if err := s.sched.Arm(updated); err != nil {
			s.log.Warn("resumed campaign not armed", logx.String("campaign", id), logx.Err(err))
		}
	} else {
		s.sched.Disarm(id)
	}
	return updated, nil
}

// Delete removes the campaign and its trigger.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.st.LoadCampaigns(ctx)
	if err != nil {
		return err
	}
	kept := cs[:0]
	found := false
	for _, c := range cs {
		if c.ID == id {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.st.SaveCampaigns(ctx, kept); err != nil {
		return err
	}
	s.sched.Disarm(id)
	s.log.Info("campaign deleted", logx.String("campaign", id))
	return nil
}

// AppendExecution records one run's outcome on the campaign and, for
// one-shot schedules, pauses the campaign so it never re-fires.
func (s *Service) AppendExecution(ctx context.Context, id string, r model.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oneShot bool
	err := s.mutate(ctx, id, func(c *model.Campaign) error {
		c.Stats.AppendExecution(r)
		if c.Schedule.Kind == model.ScheduleImmediate || c.Schedule.Kind == model.ScheduleOnce {
			c.Status = model.StatusPaused
			oneShot = true
		}
		c.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return err
	}
	if oneShot {
		s.sched.Disarm(id)
	}
	return nil
}

// ArmActive loads the collection and arms every active campaign; used
// at startup and after reconnect. Returns the armed count.
func (s *Service) ArmActive(ctx context.Context) int {
	s.mu.Lock()
	cs, err := s.st.LoadCampaigns(ctx)
	s.mu.Unlock()
	if err != nil {
		s.log.Error("campaign load failed; nothing armed", logx.Err(err))
		return 0
	}
	return s.sched.ArmAll(cs)
}

// mutate applies fn to the campaign inside one read-modify-write of the
// whole collection. Call with s.mu held.
func (s *Service) mutate(ctx context.Context, id string, fn func(*model.Campaign) error) error {
	cs, err := s.st.LoadCampaigns(ctx)
	if err != nil {
		return err
	}
	for i := range cs {
		if cs[i].ID != id {
			continue
		}
		if err := fn(&cs[i]); err != nil {
			return err
		}
		return s.st.SaveCampaigns(ctx, cs)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
