// Package httpapi exposes the reported surface over HTTP: connection
// status, campaign CRUD, group refresh, statistics and settings. It is
// thin plumbing over the core services; no dispatch logic lives here.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"groupcast/internal/campaigns"
	"groupcast/internal/connection"
	"groupcast/internal/model"
	logx "groupcast/pkg/logx"
)

// Session is the connection-manager surface the API reports and drives.
type Session interface {
	Snapshot() connection.Snapshot
	Connect()
	Logout(ctx context.Context) error
}

// Campaigns is the campaign surface.
type Campaigns interface {
	List(ctx context.Context) ([]model.Campaign, error)
	Get(ctx context.Context, id string) (model.Campaign, error)
	Create(ctx context.Context, in campaigns.Input) (model.Campaign, error)
	Update(ctx context.Context, id string, in campaigns.Input) (model.Campaign, error)
	SetStatus(ctx context.Context, id string, st model.CampaignStatus) (model.Campaign, error)
	Delete(ctx context.Context, id string) error
}

// Groups is the destination snapshot surface.
type Groups interface {
	Snapshot() []model.Group
	Refresh(ctx context.Context) (int, error)
}

// Stats reads the statistics document.
type Stats interface {
	Snapshot(ctx context.Context) (model.Statistics, error)
}

// Settings is the runtime-settings surface.
type Settings interface {
	LoadSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error
}

// Armed reports the campaigns with a live trigger.
type Armed interface {
	Armed() []string
}

type Config struct {
	Addr string // default "127.0.0.1:8090"
}

type Server struct {
	cfg Config
	log logx.Logger

	session   Session
	campaigns Campaigns
	groups    Groups
	stats     Stats
	settings  Settings
	armed     Armed

	srv *http.Server
}

func New(cfg Config, session Session, cs Campaigns, gs Groups, st Stats,
	set Settings, armed Armed, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8090"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:       cfg,
		log:       log,
		session:   session,
		campaigns: cs,
		groups:    gs,
		stats:     st,
		settings:  set,
		armed:     armed,
	}
}

// Router builds the chi router (exported for handler tests).
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/connect", s.handleConnect)
		r.Post("/logout", s.handleLogout)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Get("/{id}", s.handleGetCampaign)
			r.Put("/{id}", s.handleUpdateCampaign)
			r.Post("/{id}/status", s.handleSetCampaignStatus)
			r.Delete("/{id}", s.handleDeleteCampaign)
		})

		r.Get("/groups", s.handleListGroups)
		r.Post("/groups/refresh", s.handleRefreshGroups)

		r.Get("/stats", s.handleStats)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})
	return r
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Info("http api listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http api stopped", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ---- handlers ----

type statusResponse struct {
	Connection connection.Snapshot `json:"connection"`
	Armed      []string            `json:"armed_campaigns"`
	Groups     int                 `json:"groups"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Connection: s.session.Snapshot(),
		Armed:      s.armed.Armed(),
		Groups:     len(s.groups.Snapshot()),
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.session.Connect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "connecting"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	cs, err := s.campaigns.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cs == nil {
		cs = []model.Campaign{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaigns.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := s.campaigns.Create(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaigns.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := s.campaigns.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSetCampaignStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.CampaignStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := s.campaigns.SetStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	gs := s.groups.Snapshot()
	if gs == nil {
		gs = []model.Group{}
	}
	writeJSON(w, http.StatusOK, gs)
}

func (s *Server) handleRefreshGroups(w http.ResponseWriter, r *http.Request) {
	n, err := s.groups.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"groups": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	set, err := s.settings.LoadSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var set model.Settings
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if set.AntiSpam.IntervalMinutes < 0 || set.AntiSpam.MaxPerGroup < 0 {
		writeError(w, http.StatusBadRequest, errors.New("anti-spam values must be >= 0"))
		return
	}
	if err := s.settings.SaveSettings(r.Context(), set); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// ---- helpers ----

func statusFor(err error) int {
	if errors.Is(err, campaigns.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
