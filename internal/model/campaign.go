package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign. Only active
// campaigns are armed for execution.
type CampaignStatus string

const (
	StatusActive CampaignStatus = "active"
	StatusPaused CampaignStatus = "paused"
)

const (
	// MaxDestinations bounds a campaign's target list.
	MaxDestinations = 50

	// MaxExecutionRecords bounds the per-campaign execution history.
	// Older records are dropped on overflow, newest last.
	MaxExecutionRecords = 10
)

// ScheduleKind selects the schedule variant.
type ScheduleKind string

const (
	ScheduleImmediate ScheduleKind = "immediate"
	ScheduleOnce      ScheduleKind = "once"
	ScheduleRecurring ScheduleKind = "recurring"
)

// Frequency is the recurrence rule of a recurring schedule.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// Schedule is a declarative schedule descriptor.
//
// Exactly one variant applies, selected by Kind:
//   - immediate: fire once, as soon as possible
//   - once:      fire once at FireAt (must be in the future at arm time)
//   - recurring: fire daily or weekly at Time ("HH:MM"); weekly requires
//     a non-empty DaysOfWeek (0=Sunday .. 6=Saturday)
type Schedule struct {
	Kind       ScheduleKind `json:"kind"`
	FireAt     time.Time    `json:"fire_at,omitempty"`
	Frequency  Frequency    `json:"frequency,omitempty"`
	Time       string       `json:"time,omitempty"`
	DaysOfWeek []int        `json:"days_of_week,omitempty"`
}

// ExecutionRecord is one completed pass over a campaign's destinations.
type ExecutionRecord struct {
	At     time.Time `json:"at"`
	Sent   int       `json:"sent"`
	Failed int       `json:"failed"`
}

// CampaignStats carries lifetime counters and the bounded execution
// history for one campaign.
type CampaignStats struct {
	TotalSent   int               `json:"total_sent"`
	TotalFailed int               `json:"total_failed"`
	Executions  []ExecutionRecord `json:"executions,omitempty"`
}

// AppendExecution records r, keeping at most MaxExecutionRecords entries
// (oldest dropped first, newest last).
func (s *CampaignStats) AppendExecution(r ExecutionRecord) {
	s.TotalSent += r.Sent
	s.TotalFailed += r.Failed
	s.Executions = append(s.Executions, r)
	if n := len(s.Executions); n > MaxExecutionRecords {
		s.Executions = append(s.Executions[:0], s.Executions[n-MaxExecutionRecords:]...)
	}
}

// Campaign is a templated message dispatched to a set of destination
// groups on a schedule.
type Campaign struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Message      string        `json:"message"`
	ImagePath    string        `json:"image_path,omitempty"`
	Destinations []string      `json:"destinations"`
	Schedule     Schedule      `json:"schedule"`
	Status       CampaignStatus `json:"status"`
	Stats        CampaignStats `json:"stats"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Validate checks the definition fields (not the schedule; the schedule
// translator owns schedule validation).
func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("campaign name is required")
	}
	if strings.TrimSpace(c.Message) == "" {
		return errors.New("campaign message is required")
	}
	if len(c.Destinations) == 0 {
		return errors.New("at least one destination is required")
	}
	if len(c.Destinations) > MaxDestinations {
		return fmt.Errorf("too many destinations: %d (max %d)", len(c.Destinations), MaxDestinations)
	}
	seen := make(map[string]struct{}, len(c.Destinations))
	for _, d := range c.Destinations {
		if strings.TrimSpace(d) == "" {
			return errors.New("empty destination id")
		}
		if _, dup := seen[d]; dup {
			return fmt.Errorf("duplicate destination %q", d)
		}
		seen[d] = struct{}{}
	}
	switch c.Status {
	case StatusActive, StatusPaused:
	default:
		return fmt.Errorf("unknown status %q", c.Status)
	}
	return nil
}
