// Package app wires the dispatch core together: config, logging,
// storage, the transport adapter, the connection manager, the
// scheduler, the execution engine, and the HTTP surface. It owns
// startup/shutdown ordering; the packages it assembles never import it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"groupcast/internal/antispam"
	"groupcast/internal/campaigns"
	"groupcast/internal/config"
	"groupcast/internal/connection"
	"groupcast/internal/engine"
	"groupcast/internal/eventbus"
	"groupcast/internal/groups"
	"groupcast/internal/httpapi"
	"groupcast/internal/model"
	"groupcast/internal/schedule"
	"groupcast/internal/stats"
	"groupcast/internal/store"
	"groupcast/internal/transport"
	"groupcast/internal/transport/telegram"
	logx "groupcast/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store store.Store
	tr    transport.Transport

	conn    *connection.Manager
	sched   *schedule.Scheduler
	engine  *engine.Engine
	camps   *campaigns.Service
	groups  *groups.Cache
	stats   *stats.Tracker
	limiter *antispam.Limiter
	httpsrv *httpapi.Server

	loc *time.Location

	cancel  context.CancelFunc
	cfgSub  chan *config.Config
	started bool
}

// New loads configuration and constructs every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
	}
	if err := a.build(cfg, log); err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
		loc = l
	}
	a.loc = loc

	busyTimeout, err := cfg.Store.BusyTimeout.Or("store.busy_timeout", 0)
	if err != nil {
		return err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st

	tr, err := a.buildTransport(cfg, log)
	if err != nil {
		st.Close()
		return err
	}
	a.tr = tr

	connCfg, err := connectionConfig(cfg.Connection)
	if err != nil {
		st.Close()
		return err
	}
	a.conn = connection.New(connCfg, tr, log.With(logx.String("comp", "connection")), a.bus)

	a.stats = stats.New(st, loc, log.With(logx.String("comp", "stats")))
	a.groups = groups.New(tr, st, log.With(logx.String("comp", "groups")))

	a.limiter = antispam.New(func() (model.AntiSpamSettings, error) {
		set, err := st.LoadSettings(context.Background())
		if err != nil {
			return model.AntiSpamSettings{}, err
		}
		return set.AntiSpam, nil
	}, log.With(logx.String("comp", "antispam")))

	sendDelay, err := cfg.Engine.SendDelay.Or("engine.send_delay", 0)
	if err != nil {
		st.Close()
		return err
	}

	// The scheduler fires into the engine, the engine reads campaigns,
	// and the campaign service arms the scheduler. The indirection below
	// breaks that cycle at construction time.
	a.sched = schedule.New(loc, runnerFunc(func(ctx context.Context, id string) {
		a.engine.Execute(ctx, id)
	}), log.With(logx.String("comp", "schedule")), a.bus)

	a.camps = campaigns.New(st, a.sched, a.stats, log.With(logx.String("comp", "campaigns")))

	a.engine = engine.New(engine.Config{SendDelay: sendDelay},
		a.camps, a.conn, a.limiter, a.groups, tr, a.stats,
		log.With(logx.String("comp", "engine")), a.bus)

	if cfg.HTTP.Enabled {
		a.httpsrv = httpapi.New(httpapi.Config{Addr: cfg.HTTP.Addr},
			a.conn, a.camps, a.groups, a.stats, st, a.sched,
			log.With(logx.String("comp", "http")))
	}

	// Once the session settles, refresh the destination snapshot and
	// arm active campaigns. Runs on every (re)connect.
	a.conn.SetOnConnected(func(ctx context.Context) {
		n, err := a.groups.Refresh(ctx)
		if err != nil {
			a.log.Warn("group refresh failed", logx.Err(err))
		} else {
			a.stats.RecordGroups(ctx, n)
		}
		armed := a.camps.ArmActive(ctx)
		a.log.Info("session ready", logx.Int("groups", n), logx.Int("armed", armed))
	})

	return nil
}

func (a *App) buildTransport(cfg *config.Config, log logx.Logger) (transport.Transport, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Transport.Driver))
	switch driver {
	case "", "telegram":
		token := cfg.Transport.Token
		if token == "" {
			token = os.Getenv("GROUPCAST_BOT_TOKEN")
		}
		return telegram.New(telegram.Config{
			Token:      token,
			GroupIDs:   cfg.Transport.GroupIDs,
			RatePerSec: cfg.Transport.RatePerSec,
		}, log.With(logx.String("comp", "telegram")))
	default:
		return nil, fmt.Errorf("transport.driver: unknown driver %q", driver)
	}
}

func connectionConfig(c config.ConnectionConfig) (connection.Config, error) {
	reconnect, err := c.ReconnectDelay.Or("connection.reconnect_delay", 0)
	if err != nil {
		return connection.Config{}, err
	}
	retry, err := c.ErrorRetryDelay.Or("connection.error_retry_delay", 0)
	if err != nil {
		return connection.Config{}, err
	}
	settle, err := c.SettleDelay.Or("connection.settle_delay", 0)
	if err != nil {
		return connection.Config{}, err
	}
	return connection.Config{
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ReconnectDelay:       reconnect,
		ErrorRetryDelay:      retry,
		SettleDelay:          settle,
		LogCapacity:          c.LogCapacity,
	}, nil
}

// Start brings the process up: config watcher, limiter housekeeping,
// persisted group snapshot, HTTP surface, then the network session.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	a.started = true

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.groups.Load(runCtx); err != nil {
		a.log.Warn("group snapshot load failed", logx.Err(err))
	}

	cleanupEvery, err := a.cfg.AntiSpam.CleanupEvery.Or("anti_spam.cleanup_every", 10*time.Minute)
	if err != nil {
		return err
	}
	staleAfter, err := a.cfg.AntiSpam.StaleAfter.Or("anti_spam.stale_after", 24*time.Hour)
	if err != nil {
		return err
	}
	a.limiter.StartCleanup(runCtx, cleanupEvery, staleAfter)

	a.cfgSub = a.cfgm.Subscribe(4)
	go a.watchConfig(runCtx)
	go func() {
		// Blocks until runCtx ends; a setup failure just means no hot reload.
		if err := a.cfgm.Watch(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	if a.httpsrv != nil {
		a.httpsrv.Start()
	}

	a.conn.Connect()
	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

// watchConfig applies hot-reloadable settings. Only logging is live;
// transport, store and scheduler changes need a restart.
func (a *App) watchConfig(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgSub:
			if !ok {
				return
			}
			a.cfg = cfg
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("config reloaded")
		}
	}
}

// Stop tears everything down in reverse order of Start.
func (a *App) Stop(ctx context.Context) error {
	if !a.started {
		return nil
	}
	a.started = false

	if a.cancel != nil {
		a.cancel()
	}
	if a.cfgSub != nil {
		a.cfgm.Unsubscribe(a.cfgSub)
	}

	if a.httpsrv != nil {
		if err := a.httpsrv.Stop(ctx); err != nil {
			a.log.Warn("http shutdown", logx.Err(err))
		}
	}

	a.sched.Stop()

	if err := a.conn.Shutdown(ctx); err != nil {
		a.log.Warn("connection shutdown", logx.Err(err))
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

// runnerFunc adapts a closure to schedule.Runner.
type runnerFunc func(ctx context.Context, campaignID string)

func (f runnerFunc) Execute(ctx context.Context, campaignID string) { f(ctx, campaignID) }
