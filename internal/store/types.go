package store

import (
	"context"
	"errors"
	"time"

	"groupcast/internal/model"
)

var (
	ErrDisabled = errors.New("store disabled")
)

// Collection names. Each collection is read and written as a whole
// document; callers must read-modify-write.
const (
	ColCampaigns  = "campaigns"
	ColGroups     = "groups"
	ColStatistics = "statistics"
	ColSettings   = "settings"
)

// Config configures the persistence gateway.
//
// Driver values:
//   - "file": dependency-free file backend (one JSON document per collection)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the whole-document persistence API used by the dispatch core.
//
// A missing collection is not an error: loads return empty values
// (settings fall back to model.DefaultSettings).
type Store interface {
	LoadCampaigns(ctx context.Context) ([]model.Campaign, error)
	SaveCampaigns(ctx context.Context, cs []model.Campaign) error

	LoadGroups(ctx context.Context) ([]model.Group, error)
	SaveGroups(ctx context.Context, gs []model.Group) error

	LoadStatistics(ctx context.Context) (model.Statistics, error)
	SaveStatistics(ctx context.Context, st model.Statistics) error

	LoadSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error

	Close() error
}
