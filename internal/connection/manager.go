// Package connection owns the lifecycle of the chat-network session: a
// small state machine fed by transport events, with bounded transition
// history and automatic reconnection.
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"groupcast/internal/eventbus"
	"groupcast/internal/transport"
	logx "groupcast/pkg/logx"
)

// State of the session. Exactly one value at any instant.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateQRReady      State = "qr_ready"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// LogEntry is one human-readable transition record.
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Snapshot is the reported connection status.
type Snapshot struct {
	State          State      `json:"state"`
	PairingPayload string     `json:"pairing_payload,omitempty"`
	Attempts       int        `json:"reconnect_attempts"`
	MaxAttempts    int        `json:"max_reconnect_attempts"`
	Log            []LogEntry `json:"log"`
}

type Config struct {
	// MaxReconnectAttempts caps consecutive automatic reconnects.
	// Once exhausted the counter resets and the manager stays down
	// until a manual connect. Default 5.
	MaxReconnectAttempts int
	// ReconnectDelay follows a recoverable close. Default 5s.
	ReconnectDelay time.Duration
	// ErrorRetryDelay follows an unrecoverable session error. Default 10s.
	ErrorRetryDelay time.Duration
	// SettleDelay is the pause between session open and the
	// post-connect callback (group refresh, trigger rearm). Default 2s.
	SettleDelay time.Duration
	// LogCapacity bounds the transition log. Default 100.
	LogCapacity int
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.ErrorRetryDelay <= 0 {
		c.ErrorRetryDelay = 10 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.LogCapacity <= 0 {
		c.LogCapacity = 100
	}
	return c
}

// Manager never blocks its caller: transitions happen on the event
// loop, reconnects are scheduled with timers.
type Manager struct {
	cfg Config
	tr  transport.Transport
	log logx.Logger
	bus eventbus.Bus

	// onConnected runs after the settle delay each time the session
	// opens. Set before Connect.
	onConnected func(ctx context.Context)

	mu        sync.Mutex
	state     State
	pairing   string
	attempts  int
	entries   []LogEntry
	reconnect *time.Timer
	settle    *time.Timer

	loopOnce sync.Once
	loopDone chan struct{}
}

func New(cfg Config, tr transport.Transport, log logx.Logger, bus eventbus.Bus) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		cfg:      cfg.withDefaults(),
		tr:       tr,
		log:      log,
		bus:      bus,
		state:    StateDisconnected,
		loopDone: make(chan struct{}),
	}
}

// SetOnConnected installs the post-connect callback. Call before Connect.
func (m *Manager) SetOnConnected(fn func(ctx context.Context)) { m.onConnected = fn }

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the session is open.
func (m *Manager) Connected() bool { return m.State() == StateConnected }

// Snapshot returns the reported status (log newest first).
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:          m.state,
		PairingPayload: m.pairing,
		Attempts:       m.attempts,
		MaxAttempts:    m.cfg.MaxReconnectAttempts,
		Log:            append([]LogEntry(nil), m.entries...),
	}
}

// Connect requests session establishment. Idempotent: ignored unless
// the current state is disconnected or error.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state != StateDisconnected && m.state != StateError {
		m.mu.Unlock()
		m.log.Debug("connect ignored", logx.String("state", string(m.state)))
		return
	}
	m.setStateLocked(StateConnecting, "connecting to chat network")
	m.mu.Unlock()

	m.loopOnce.Do(func() { go m.run() })

	if err := m.tr.Connect(context.Background()); err != nil {
		m.handle(transport.Event{Kind: transport.EventFatal, Err: err})
	}
}

// Logout terminates the session permanently; no reconnect follows.
func (m *Manager) Logout(ctx context.Context) error {
	return m.tr.Logout(ctx)
}

// Shutdown cancels pending reconnects and closes the session. It waits
// for the event loop to drain; in-flight sends finish or fail on their
// own.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.stopTimersLocked()
	m.setStateLocked(StateDisconnected, "shutting down")
	m.mu.Unlock()

	err := m.tr.Close()

	// If the event loop never started, unblock the wait below.
	m.loopOnce.Do(func() { close(m.loopDone) })
	select {
	case <-m.loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// run consumes the transport's event stream until it closes.
func (m *Manager) run() {
	defer close(m.loopDone)
	for ev := range m.tr.Events() {
		m.handle(ev)
	}
}

func (m *Manager) handle(ev transport.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case transport.EventPairing:
		if m.state != StateConnecting && m.state != StateQRReady {
			return
		}
		m.pairing = ev.PairingPayload
		m.setStateLocked(StateQRReady, "pairing challenge ready; scan to continue")

	case transport.EventOpened:
		m.pairing = ""
		m.attempts = 0
		m.stopTimersLocked()
		m.setStateLocked(StateConnected, "session open")
		if m.onConnected != nil {
			fn := m.onConnected
			m.settle = time.AfterFunc(m.cfg.SettleDelay, func() {
				if m.Connected() {
					fn(context.Background())
				}
			})
		}

	case transport.EventClosed:
		m.pairing = ""
		if ev.Reason == transport.ReasonLoggedOut {
			m.setStateLocked(StateDisconnected, "logged out; reconnect disabled")
			return
		}
		reason := ev.Reason
		if reason == "" {
			reason = "connection closed"
		}
		m.setStateLocked(StateDisconnected, "session closed: "+reason)
		m.scheduleReconnectLocked(m.cfg.ReconnectDelay)

	case transport.EventFatal:
		m.pairing = ""
		m.setStateLocked(StateError, fmt.Sprintf("session error: %v", ev.Err))
		m.scheduleReconnectLocked(m.cfg.ErrorRetryDelay)
	}
}

// scheduleReconnectLocked arms one reconnect attempt, or resets the
// counter once the budget is spent. Call with m.mu held.
func (m *Manager) scheduleReconnectLocked(delay time.Duration) {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.attempts = 0
		m.appendLogLocked("reconnect attempts exhausted; waiting for manual connect")
		m.log.Warn("reconnect attempts exhausted",
			logx.Int("max", m.cfg.MaxReconnectAttempts))
		return
	}
	m.attempts++
	m.appendLogLocked(fmt.Sprintf("reconnect %d/%d scheduled in %s",
		m.attempts, m.cfg.MaxReconnectAttempts, delay))
	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	m.reconnect = time.AfterFunc(delay, m.Connect)
}

func (m *Manager) stopTimersLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
}

// setStateLocked transitions and records. Call with m.mu held.
func (m *Manager) setStateLocked(s State, msg string) {
	prev := m.state
	m.state = s
	m.appendLogLocked(msg)
	m.log.Info("connection state",
		logx.String("from", string(prev)), logx.String("to", string(s)))
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeConnectionState, Data: string(s)})
	}
}

// appendLogLocked prepends an entry (newest first) and evicts the
// oldest past capacity. Call with m.mu held.
func (m *Manager) appendLogLocked(msg string) {
	e := LogEntry{At: time.Now(), Message: msg}
	m.entries = append([]LogEntry{e}, m.entries...)
	if len(m.entries) > m.cfg.LogCapacity {
		m.entries = m.entries[:m.cfg.LogCapacity]
	}
}
