//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"groupcast/internal/model"
	logx "groupcast/pkg/logx"
)

// sqliteStore keeps every collection as a JSON document in a single
// table. The document-per-collection contract stays identical to the
// file driver; sqlite just adds WAL durability.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT PRIMARY KEY,
			body       TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) loadDoc(ctx context.Context, collection string, v any) (bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ?`, collection).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) saveDoc(ctx context.Context, collection string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents(collection, body, updated_at)
		 VALUES(?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		 ON CONFLICT(collection) DO UPDATE SET
		   body = excluded.body, updated_at = excluded.updated_at`,
		collection, string(b))
	return err
}

func (s *sqliteStore) LoadCampaigns(ctx context.Context) ([]model.Campaign, error) {
	var cs []model.Campaign
	_, err := s.loadDoc(ctx, ColCampaigns, &cs)
	return cs, err
}

func (s *sqliteStore) SaveCampaigns(ctx context.Context, cs []model.Campaign) error {
	if cs == nil {
		cs = []model.Campaign{}
	}
	return s.saveDoc(ctx, ColCampaigns, cs)
}

func (s *sqliteStore) LoadGroups(ctx context.Context) ([]model.Group, error) {
	var gs []model.Group
	_, err := s.loadDoc(ctx, ColGroups, &gs)
	return gs, err
}

func (s *sqliteStore) SaveGroups(ctx context.Context, gs []model.Group) error {
	if gs == nil {
		gs = []model.Group{}
	}
	return s.saveDoc(ctx, ColGroups, gs)
}

func (s *sqliteStore) LoadStatistics(ctx context.Context) (model.Statistics, error) {
	var st model.Statistics
	_, err := s.loadDoc(ctx, ColStatistics, &st)
	return st, err
}

func (s *sqliteStore) SaveStatistics(ctx context.Context, st model.Statistics) error {
	return s.saveDoc(ctx, ColStatistics, st)
}

func (s *sqliteStore) LoadSettings(ctx context.Context) (model.Settings, error) {
	set := model.DefaultSettings()
	_, err := s.loadDoc(ctx, ColSettings, &set)
	return set, err
}

func (s *sqliteStore) SaveSettings(ctx context.Context, set model.Settings) error {
	return s.saveDoc(ctx, ColSettings, set)
}
