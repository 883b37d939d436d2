// Package groups holds the read-mostly destination snapshot. The
// snapshot is refreshed wholesale from the transport (on connect and on
// operator request) and persisted so the list survives restarts.
package groups

import (
	"context"
	"sync"

	"groupcast/internal/model"
	"groupcast/internal/store"
	"groupcast/internal/transport"
	logx "groupcast/pkg/logx"
)

type Cache struct {
	tr  transport.Transport
	st  store.Store
	log logx.Logger

	mu   sync.RWMutex
	byID map[string]model.Group
	list []model.Group
}

func New(tr transport.Transport, st store.Store, log logx.Logger) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{tr: tr, st: st, log: log, byID: map[string]model.Group{}}
}

// Load restores the last persisted snapshot (used at startup, before
// the session is up).
func (c *Cache) Load(ctx context.Context) error {
	gs, err := c.st.LoadGroups(ctx)
	if err != nil {
		return err
	}
	c.swap(gs)
	return nil
}

// Refresh replaces the snapshot with the transport's current list and
// persists it. Returns the new group count.
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	gs, err := c.tr.ListGroups(ctx)
	if err != nil {
		return 0, err
	}
	c.swap(gs)
	if err := c.st.SaveGroups(ctx, gs); err != nil {
		c.log.Warn("group snapshot persist failed", logx.Err(err))
	}
	c.log.Info("groups refreshed", logx.Int("count", len(gs)))
	return len(gs), nil
}

func (c *Cache) swap(gs []model.Group) {
	byID := make(map[string]model.Group, len(gs))
	for _, g := range gs {
		byID[g.ID] = g
	}
	c.mu.Lock()
	c.byID = byID
	c.list = gs
	c.mu.Unlock()
}

// Get resolves one destination against the current snapshot.
func (c *Cache) Get(id string) (model.Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.byID[id]
	return g, ok
}

// Snapshot returns a copy of the current list.
func (c *Cache) Snapshot() []model.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Group(nil), c.list...)
}

// Count returns the snapshot size.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.list)
}
