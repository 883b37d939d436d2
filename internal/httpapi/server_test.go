package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"groupcast/internal/campaigns"
	"groupcast/internal/connection"
	"groupcast/internal/model"
	logx "groupcast/pkg/logx"
)

type fakeSession struct{ connects int }

func (f *fakeSession) Snapshot() connection.Snapshot {
	return connection.Snapshot{State: connection.StateConnected, MaxAttempts: 5}
}
func (f *fakeSession) Connect()                        { f.connects++ }
func (f *fakeSession) Logout(ctx context.Context) error { return nil }

type fakeCampaigns struct {
	by map[string]model.Campaign
}

func (f *fakeCampaigns) List(ctx context.Context) ([]model.Campaign, error) {
	out := make([]model.Campaign, 0, len(f.by))
	for _, c := range f.by {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCampaigns) Get(ctx context.Context, id string) (model.Campaign, error) {
	c, ok := f.by[id]
	if !ok {
		return model.Campaign{}, fmt.Errorf("%w: %s", campaigns.ErrNotFound, id)
	}
	return c, nil
}

func (f *fakeCampaigns) Create(ctx context.Context, in campaigns.Input) (model.Campaign, error) {
	c := model.Campaign{ID: "new", Name: in.Name, Message: in.Message,
		Destinations: in.Destinations, Schedule: in.Schedule, Status: model.StatusActive}
	if err := c.Validate(); err != nil {
		return model.Campaign{}, err
	}
	f.by[c.ID] = c
	return c, nil
}

func (f *fakeCampaigns) Update(ctx context.Context, id string, in campaigns.Input) (model.Campaign, error) {
	c, err := f.Get(ctx, id)
	if err != nil {
		return model.Campaign{}, err
	}
	c.Name = in.Name
	f.by[id] = c
	return c, nil
}

func (f *fakeCampaigns) SetStatus(ctx context.Context, id string, st model.CampaignStatus) (model.Campaign, error) {
	c, err := f.Get(ctx, id)
	if err != nil {
		return model.Campaign{}, err
	}
	c.Status = st
	f.by[id] = c
	return c, nil
}

func (f *fakeCampaigns) Delete(ctx context.Context, id string) error {
	if _, ok := f.by[id]; !ok {
		return campaigns.ErrNotFound
	}
	delete(f.by, id)
	return nil
}

type fakeGroups struct{ gs []model.Group }

func (f *fakeGroups) Snapshot() []model.Group               { return f.gs }
func (f *fakeGroups) Refresh(ctx context.Context) (int, error) { return len(f.gs), nil }

type fakeStats struct{}

func (fakeStats) Snapshot(ctx context.Context) (model.Statistics, error) {
	return model.Statistics{TotalSent: 9}, nil
}

type fakeSettings struct{ set model.Settings }

func (f *fakeSettings) LoadSettings(ctx context.Context) (model.Settings, error) { return f.set, nil }
func (f *fakeSettings) SaveSettings(ctx context.Context, s model.Settings) error {
	f.set = s
	return nil
}

type fakeArmed struct{}

func (fakeArmed) Armed() []string { return []string{"c1"} }

func newTestServer() (*Server, *fakeCampaigns) {
	fc := &fakeCampaigns{by: map[string]model.Campaign{
		"c1": {ID: "c1", Name: "promo", Message: "m", Destinations: []string{"g1"},
			Schedule: model.Schedule{Kind: model.ScheduleImmediate}, Status: model.StatusActive},
	}}
	s := New(Config{}, &fakeSession{}, fc,
		&fakeGroups{gs: []model.Group{{ID: "g1", Name: "Group One"}}},
		fakeStats{}, &fakeSettings{set: model.DefaultSettings()}, fakeArmed{}, logx.Nop())
	return s, fc
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer()
	rr := doRequest(t, s.Router(), http.MethodGet, "/api/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Connection.State != connection.StateConnected || got.Groups != 1 {
		t.Fatalf("response = %+v", got)
	}
}

func TestCreateCampaign(t *testing.T) {
	t.Parallel()
	s, fc := newTestServer()
	body := `{"name":"n","message":"m","destinations":["g1"],"schedule":{"kind":"immediate"}}`
	rr := doRequest(t, s.Router(), http.MethodPost, "/api/campaigns/", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if _, ok := fc.by["new"]; !ok {
		t.Fatal("campaign not created")
	}
}

func TestCreateCampaignRejectsInvalid(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer()
	rr := doRequest(t, s.Router(), http.MethodPost, "/api/campaigns/", `{"name":"n"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestGetCampaignNotFound(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer()
	rr := doRequest(t, s.Router(), http.MethodGet, "/api/campaigns/ghost", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestToggleCampaignStatus(t *testing.T) {
	t.Parallel()
	s, fc := newTestServer()
	rr := doRequest(t, s.Router(), http.MethodPost, "/api/campaigns/c1/status", `{"status":"paused"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if fc.by["c1"].Status != model.StatusPaused {
		t.Fatal("status not applied")
	}
}

func TestPutSettingsValidation(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer()
	rr := doRequest(t, s.Router(), http.MethodPut, "/api/settings",
		`{"anti_spam":{"enabled":true,"interval_minutes":-1,"max_per_group":2}}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = doRequest(t, s.Router(), http.MethodPut, "/api/settings",
		`{"anti_spam":{"enabled":true,"interval_minutes":30,"max_per_group":2}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestDeleteCampaign(t *testing.T) {
	t.Parallel()
	s, fc := newTestServer()
	rr := doRequest(t, s.Router(), http.MethodDelete, "/api/campaigns/c1", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(fc.by) != 0 {
		t.Fatal("campaign not deleted")
	}
}
