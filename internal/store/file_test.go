package store

import (
	"context"
	"testing"
	"time"

	"groupcast/internal/model"
	logx "groupcast/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFileStoreEmptyCollections(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	cs, err := st.LoadCampaigns(ctx)
	if err != nil {
		t.Fatalf("LoadCampaigns: %v", err)
	}
	if len(cs) != 0 {
		t.Fatalf("expected no campaigns, got %d", len(cs))
	}

	set, err := st.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if set != model.DefaultSettings() {
		t.Fatalf("missing settings should default, got %+v", set)
	}
}

func TestFileStoreCampaignRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	in := []model.Campaign{{
		ID:           "c1",
		Name:         "promo",
		Message:      "hello",
		Destinations: []string{"g1", "g2"},
		Schedule:     model.Schedule{Kind: model.ScheduleImmediate},
		Status:       model.StatusActive,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}}
	if err := st.SaveCampaigns(ctx, in); err != nil {
		t.Fatalf("SaveCampaigns: %v", err)
	}
	out, err := st.LoadCampaigns(ctx)
	if err != nil {
		t.Fatalf("LoadCampaigns: %v", err)
	}
	if len(out) != 1 || out[0].ID != "c1" || out[0].Name != "promo" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if len(out[0].Destinations) != 2 {
		t.Fatalf("destinations lost: %+v", out[0].Destinations)
	}
}

func TestFileStoreStatisticsRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	in := model.Statistics{
		TotalSent:   7,
		TotalFailed: 2,
		Daily:       map[string]model.DayStats{"2026-01-02": {Sent: 7, Failed: 2}},
	}
	if err := st.SaveStatistics(ctx, in); err != nil {
		t.Fatalf("SaveStatistics: %v", err)
	}
	out, err := st.LoadStatistics(ctx)
	if err != nil {
		t.Fatalf("LoadStatistics: %v", err)
	}
	if out.TotalSent != 7 || out.Daily["2026-01-02"].Failed != 2 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres", Path: t.TempDir()}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
