// Package telegram adapts a Telegram bot session to transport.Transport.
//
// Telegram bot sessions need no pairing step, so this adapter never
// emits EventPairing; the session opens as soon as the API accepts the
// token. Destination groups are the configured chat IDs (the Bot API
// cannot enumerate the chats a bot belongs to).
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"groupcast/internal/model"
	"groupcast/internal/transport"
	logx "groupcast/pkg/logx"
)

type Config struct {
	Token string

	// GroupIDs are the chat IDs this operator may target.
	GroupIDs []int64

	// RatePerSec paces outbound API calls. Telegram throttles bots
	// around 30 messages/second globally; default 20.
	RatePerSec int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	mu        sync.Mutex
	connected bool
	closed    bool

	events chan transport.Event
}

const apiTimeout = 15 * time.Second

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		events:  make(chan transport.Event, 16),
	}, nil
}

func (a *Adapter) Events() <-chan transport.Event { return a.events }

// Connect authenticates the bot token. Outcome is reported on Events();
// the error return only covers immediate refusal (already connected).
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	go func() {
		// Send-only session: no poller, updates are never consumed.
		b, err := tele.NewBot(tele.Settings{Token: a.cfg.Token})
		if err != nil {
			a.emit(transport.Event{Kind: transport.EventFatal, Err: err})
			return
		}
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return
		}
		a.bot = b
		a.connected = true
		a.mu.Unlock()
		a.log.Info("telegram session open", logx.String("bot", b.Me.Username))
		a.emit(transport.Event{Kind: transport.EventOpened})
	}()
	return nil
}

func (a *Adapter) emit(e transport.Event) {
	// Events must never block the adapter; the consumer owns a
	// dedicated reader loop, so a full buffer means it is gone. The
	// send happens under a.mu so it cannot race Close closing the
	// channel (the connect goroutine may still be mid-auth then).
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.events <- e:
	default:
		a.log.Warn("session event dropped", logx.Int("kind", int(e.Kind)))
	}
}

func (a *Adapter) session() (*tele.Bot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected || a.bot == nil {
		return nil, transport.ErrNotConnected
	}
	return a.bot, nil
}

func (a *Adapter) Send(ctx context.Context, destinationID string, msg transport.Message) error {
	b, err := a.session()
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(destinationID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad destination id %q: %w", destinationID, err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	to := tele.ChatID(chatID)
	if msg.ImagePath != "" {
		photo := &tele.Photo{File: tele.FromDisk(msg.ImagePath), Caption: msg.Text}
		_, err = b.Send(to, photo)
	} else {
		_, err = b.Send(to, msg.Text)
	}
	if err != nil {
		return fmt.Errorf("send to %s: %w", destinationID, err)
	}
	return nil
}

func (a *Adapter) ListGroups(ctx context.Context) ([]model.Group, error) {
	b, err := a.session()
	if err != nil {
		return nil, err
	}
	out := make([]model.Group, 0, len(a.cfg.GroupIDs))
	for _, id := range a.cfg.GroupIDs {
		chat, err := b.ChatByID(id)
		if err != nil {
			a.log.Warn("group lookup failed", logx.Int64("chat_id", id), logx.Err(err))
			continue
		}
		g := model.Group{
			ID:          strconv.FormatInt(id, 10),
			Name:        chat.Title,
			Description: chat.Description,
		}
		if n, err := b.Len(chat); err == nil {
			g.Participants = n
		}
		if admins, err := b.AdminsOf(chat); err == nil {
			for _, m := range admins {
				if m.User != nil && m.User.ID == b.Me.ID {
					g.IsAdmin = true
					break
				}
			}
		}
		out = append(out, g)
	}
	return out, nil
}

// Logout drops the local session and reports a logged-out close, which
// the connection manager treats as terminal (no reconnect).
func (a *Adapter) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.bot = nil
	a.mu.Unlock()
	a.emit(transport.Event{Kind: transport.EventClosed, Reason: transport.ReasonLoggedOut})
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	alreadyClosed := a.closed
	a.closed = true
	a.connected = false
	a.bot = nil
	a.mu.Unlock()
	if !alreadyClosed {
		close(a.events)
	}
	return nil
}
