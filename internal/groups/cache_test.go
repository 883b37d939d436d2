package groups

import (
	"context"
	"errors"
	"testing"

	"groupcast/internal/model"
	"groupcast/internal/store"
	"groupcast/internal/transport"
	logx "groupcast/pkg/logx"
)

type listTransport struct {
	groups []model.Group
	err    error
}

func (t *listTransport) Connect(ctx context.Context) error { return nil }
func (t *listTransport) Events() <-chan transport.Event    { return nil }
func (t *listTransport) Send(ctx context.Context, destinationID string, msg transport.Message) error {
	return nil
}
func (t *listTransport) ListGroups(ctx context.Context) ([]model.Group, error) {
	return t.groups, t.err
}
func (t *listTransport) Logout(ctx context.Context) error { return nil }
func (t *listTransport) Close() error                     { return nil }

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRefreshSwapsAndPersists(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	tr := &listTransport{groups: []model.Group{
		{ID: "g1", Name: "One"},
		{ID: "g2", Name: "Two"},
	}}
	c := New(tr, st, logx.Nop())

	n, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n != 2 || c.Count() != 2 {
		t.Fatalf("count = %d/%d, want 2", n, c.Count())
	}
	if _, ok := c.Get("g2"); !ok {
		t.Fatal("g2 not resolvable")
	}

	// A fresh cache over the same store sees the persisted snapshot.
	c2 := New(tr, st, logx.Nop())
	if err := c2.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c2.Count() != 2 {
		t.Fatalf("restored count = %d, want 2", c2.Count())
	}
}

func TestRefreshReplacesStaleEntries(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	tr := &listTransport{groups: []model.Group{{ID: "old", Name: "Old"}}}
	c := New(tr, st, logx.Nop())

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	tr.groups = []model.Group{{ID: "new", Name: "New"}}
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, ok := c.Get("old"); ok {
		t.Fatal("stale entry survived refresh")
	}
	if _, ok := c.Get("new"); !ok {
		t.Fatal("new entry missing")
	}
}

func TestRefreshErrorKeepsSnapshot(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	tr := &listTransport{groups: []model.Group{{ID: "g1"}}}
	c := New(tr, st, logx.Nop())

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	tr.err = errors.New("session gone")
	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatal("want error from failed refresh")
	}
	if c.Count() != 1 {
		t.Fatalf("snapshot lost on failed refresh: count = %d", c.Count())
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	tr := &listTransport{groups: []model.Group{{ID: "g1", Name: "One"}}}
	c := New(tr, st, logx.Nop())
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap := c.Snapshot()
	snap[0].Name = "mutated"
	if got, _ := c.Get("g1"); got.Name != "One" {
		t.Fatalf("cache mutated through snapshot: %q", got.Name)
	}
}
