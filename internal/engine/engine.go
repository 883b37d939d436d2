// Package engine runs one campaign pass: resolve each destination,
// apply the anti-spam quota, send, and account the outcome. A run is
// best-effort end to end; no single destination's failure aborts it.
package engine

import (
	"context"
	"time"

	"groupcast/internal/eventbus"
	"groupcast/internal/model"
	"groupcast/internal/transport"
	logx "groupcast/pkg/logx"
)

// Campaigns is the campaign read/stats-write surface the engine needs.
type Campaigns interface {
	Get(ctx context.Context, id string) (model.Campaign, error)
	AppendExecution(ctx context.Context, id string, r model.ExecutionRecord) error
}

// Limiter gates sends per destination.
type Limiter interface {
	Allow(destination string) bool
}

// Resolver resolves a destination id against the current group snapshot.
type Resolver interface {
	Get(id string) (model.Group, bool)
}

// Session reports whether the network session is open.
type Session interface {
	Connected() bool
}

// Recorder receives aggregate outcome counts.
type Recorder interface {
	RecordSent(ctx context.Context, n int)
	RecordFailed(ctx context.Context, n int)
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, destinationID string, msg transport.Message) error
}

// Outcome is the per-destination result of one run.
type Outcome struct {
	Destination string `json:"destination"`
	Sent        bool   `json:"sent"`
	Reason      string `json:"reason,omitempty"`
}

// Summary accumulates one run's outcomes.
type Summary struct {
	CampaignID string    `json:"campaign_id"`
	At         time.Time `json:"at"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
}

type Config struct {
	// SendDelay is the fixed pause between destinations: the primary
	// outbound flood throttle, applied regardless of outcome. Default 3s.
	SendDelay time.Duration
}

type Engine struct {
	cfg       Config
	campaigns Campaigns
	session   Session
	limiter   Limiter
	groups    Resolver
	sender    Sender
	stats     Recorder
	log       logx.Logger
	bus       eventbus.Bus
}

func New(cfg Config, campaigns Campaigns, session Session, limiter Limiter,
	groups Resolver, sender Sender, stats Recorder, log logx.Logger, bus eventbus.Bus) *Engine {
	if cfg.SendDelay < 0 {
		cfg.SendDelay = 0
	} else if cfg.SendDelay == 0 {
		cfg.SendDelay = 3 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:       cfg,
		campaigns: campaigns,
		session:   session,
		limiter:   limiter,
		groups:    groups,
		sender:    sender,
		stats:     stats,
		log:       log,
		bus:       bus,
	}
}

// Execute runs one pass for the campaign. Skipped (not an error) when
// the campaign is missing, not active, or the session is down.
func (e *Engine) Execute(ctx context.Context, campaignID string) {
	c, err := e.campaigns.Get(ctx, campaignID)
	if err != nil {
		e.log.Warn("execution skipped: campaign unavailable",
			logx.String("campaign", campaignID), logx.Err(err))
		return
	}
	if c.Status != model.StatusActive {
		e.log.Info("execution skipped: campaign not active",
			logx.String("campaign", c.ID))
		return
	}
	if !e.session.Connected() {
		e.log.Info("execution skipped: not connected",
			logx.String("campaign", c.ID))
		return
	}

	sum := e.run(ctx, c)

	rec := model.ExecutionRecord{At: sum.At, Sent: sum.Sent, Failed: sum.Failed}
	if err := e.campaigns.AppendExecution(ctx, c.ID, rec); err != nil {
		e.log.Error("execution record persist failed",
			logx.String("campaign", c.ID), logx.Err(err))
	}
	e.stats.RecordSent(ctx, sum.Sent)
	e.stats.RecordFailed(ctx, sum.Failed)

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeExecutionDone, Data: sum})
	}
	e.log.Info("execution finished",
		logx.String("campaign", c.ID),
		logx.Int("sent", sum.Sent),
		logx.Int("failed", sum.Failed))
}

// run walks the destination list in order. The loop is serialized on
// purpose: the inter-send delay is the flood guard and must never be
// parallelized away within one run.
func (e *Engine) run(ctx context.Context, c model.Campaign) Summary {
	sum := Summary{CampaignID: c.ID, At: time.Now()}
	msg := transport.Message{Text: c.Message, ImagePath: c.ImagePath}

	for i, dest := range c.Destinations {
		out := e.sendOne(ctx, dest, msg)
		if out.Sent {
			sum.Sent++
		} else {
			sum.Failed++
			e.log.Debug("destination failed",
				logx.String("campaign", c.ID),
				logx.String("destination", dest),
				logx.String("reason", out.Reason))
		}
		sum.Outcomes = append(sum.Outcomes, out)

		if i < len(c.Destinations)-1 && e.cfg.SendDelay > 0 {
			time.Sleep(e.cfg.SendDelay)
		}
	}
	return sum
}

func (e *Engine) sendOne(ctx context.Context, dest string, msg transport.Message) Outcome {
	if _, ok := e.groups.Get(dest); !ok {
		return Outcome{Destination: dest, Reason: "destination not in group snapshot"}
	}
	if !e.limiter.Allow(dest) {
		return Outcome{Destination: dest, Reason: "anti-spam limit reached"}
	}
	if err := e.sender.Send(ctx, dest, msg); err != nil {
		return Outcome{Destination: dest, Reason: err.Error()}
	}
	return Outcome{Destination: dest, Sent: true}
}
