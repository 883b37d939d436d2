package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"groupcast/internal/model"
	logx "groupcast/pkg/logx"
)

// fileStore is the dependency-free persistence backend.
//
// Layout: one JSON document per collection under the configured
// directory (<dir>/<collection>.json). Writes go through a temp file and
// rename so a crash mid-write never leaves a torn document.
type fileStore struct {
	log logx.Logger
	dir string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// loadDoc decodes the collection document into v. A missing file leaves
// v untouched and returns false.
func (s *fileStore) loadDoc(collection string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) saveDoc(collection string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(collection)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) LoadCampaigns(ctx context.Context) ([]model.Campaign, error) {
	var cs []model.Campaign
	_, err := s.loadDoc(ColCampaigns, &cs)
	return cs, err
}

func (s *fileStore) SaveCampaigns(ctx context.Context, cs []model.Campaign) error {
	if cs == nil {
		cs = []model.Campaign{}
	}
	return s.saveDoc(ColCampaigns, cs)
}

func (s *fileStore) LoadGroups(ctx context.Context) ([]model.Group, error) {
	var gs []model.Group
	_, err := s.loadDoc(ColGroups, &gs)
	return gs, err
}

func (s *fileStore) SaveGroups(ctx context.Context, gs []model.Group) error {
	if gs == nil {
		gs = []model.Group{}
	}
	return s.saveDoc(ColGroups, gs)
}

func (s *fileStore) LoadStatistics(ctx context.Context) (model.Statistics, error) {
	var st model.Statistics
	_, err := s.loadDoc(ColStatistics, &st)
	return st, err
}

func (s *fileStore) SaveStatistics(ctx context.Context, st model.Statistics) error {
	return s.saveDoc(ColStatistics, st)
}

func (s *fileStore) LoadSettings(ctx context.Context) (model.Settings, error) {
	set := model.DefaultSettings()
	_, err := s.loadDoc(ColSettings, &set)
	return set, err
}

func (s *fileStore) SaveSettings(ctx context.Context, set model.Settings) error {
	return s.saveDoc(ColSettings, set)
}
