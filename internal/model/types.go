package model

import "time"

// Group is a destination on the chat network. It is a read-mostly
// snapshot refreshed wholesale; the dispatch core never mutates it.
type Group struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Participants int       `json:"participants"`
	IsAdmin      bool      `json:"is_admin"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Settings are the operator-editable runtime knobs. They live in the
// settings collection and may change between two limiter calls.
type Settings struct {
	AntiSpam AntiSpamSettings `json:"anti_spam"`
}

// AntiSpamSettings configures the per-destination send quota.
type AntiSpamSettings struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
	MaxPerGroup     int  `json:"max_per_group"`
}

// DefaultSettings are applied when the settings collection is empty.
func DefaultSettings() Settings {
	return Settings{
		AntiSpam: AntiSpamSettings{
			Enabled:         true,
			IntervalMinutes: 60,
			MaxPerGroup:     3,
		},
	}
}

// DayStats is one calendar-day bucket of send outcomes.
type DayStats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Groups int `json:"groups"`
}

// Statistics aggregates send outcomes process-wide. Day buckets are
// keyed by calendar date ("2006-01-02") in the configured timezone.
// Counters only increase, except the group counts which are last-write
// snapshots of the destination list size.
type Statistics struct {
	TotalSent        int                 `json:"total_sent"`
	TotalFailed      int                 `json:"total_failed"`
	TotalGroups      int                 `json:"total_groups"`
	CampaignsCreated int                 `json:"campaigns_created"`
	Daily            map[string]DayStats `json:"daily,omitempty"`
}
