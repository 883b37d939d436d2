package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"groupcast/internal/model"
	"groupcast/internal/transport"
	logx "groupcast/pkg/logx"
)

// fakeTransport scripts session events from the test.
type fakeTransport struct {
	events chan transport.Event

	mu       sync.Mutex
	connects int

	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event, 16)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) Send(ctx context.Context, destinationID string, msg transport.Message) error {
	return nil
}

func (f *fakeTransport) ListGroups(ctx context.Context) ([]model.Group, error) { return nil, nil }

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.events <- transport.Event{Kind: transport.EventClosed, Reason: transport.ReasonLoggedOut}
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func fastConfig() Config {
	return Config{
		MaxReconnectAttempts: 3,
		ReconnectDelay:       10 * time.Millisecond,
		ErrorRetryDelay:      10 * time.Millisecond,
		SettleDelay:          5 * time.Millisecond,
		LogCapacity:          100,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestConnectToConnected(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	m := New(fastConfig(), tr, logx.Nop(), nil)

	var settled atomic.Int32
	m.SetOnConnected(func(ctx context.Context) { settled.Add(1) })

	m.Connect()
	if got := m.State(); got != StateConnecting {
		t.Fatalf("state = %s, want connecting", got)
	}

	tr.events <- transport.Event{Kind: transport.EventOpened}
	waitFor(t, "connected", m.Connected)
	waitFor(t, "settle callback", func() bool { return settled.Load() == 1 })

	snap := m.Snapshot()
	if snap.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0 after open", snap.Attempts)
	}
}

func TestConnectIdempotent(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	m := New(fastConfig(), tr, logx.Nop(), nil)

	m.Connect()
	m.Connect() // ignored: already connecting
	if got := tr.connectCount(); got != 1 {
		t.Fatalf("transport connects = %d, want 1", got)
	}
}

func TestPairingChallenge(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	m := New(fastConfig(), tr, logx.Nop(), nil)

	m.Connect()
	tr.events <- transport.Event{Kind: transport.EventPairing, PairingPayload: "qr-blob"}
	waitFor(t, "qr_ready", func() bool { return m.State() == StateQRReady })

	if got := m.Snapshot().PairingPayload; got != "qr-blob" {
		t.Fatalf("pairing payload = %q", got)
	}

	tr.events <- transport.Event{Kind: transport.EventOpened}
	waitFor(t, "connected", m.Connected)
	if got := m.Snapshot().PairingPayload; got != "" {
		t.Fatalf("pairing payload must clear on connect, got %q", got)
	}
}

func TestLoggedOutNeverReconnects(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	m := New(fastConfig(), tr, logx.Nop(), nil)

	m.Connect()
	tr.events <- transport.Event{Kind: transport.EventOpened}
	waitFor(t, "connected", m.Connected)

	tr.events <- transport.Event{Kind: transport.EventClosed, Reason: transport.ReasonLoggedOut}
	waitFor(t, "disconnected", func() bool { return m.State() == StateDisconnected })

	time.Sleep(50 * time.Millisecond)
	if got := tr.connectCount(); got != 1 {
		t.Fatalf("reconnect after logout: connects = %d, want 1", got)
	}
}

func TestRecoverableCloseSchedulesOneReconnect(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	m := New(fastConfig(), tr, logx.Nop(), nil)

	m.Connect()
	tr.events <- transport.Event{Kind: transport.EventOpened}
	waitFor(t, "connected", m.Connected)

	tr.events <- transport.Event{Kind: transport.EventClosed, Reason: "stream error"}
	waitFor(t, "scheduled reconnect", func() bool { return tr.connectCount() == 2 })

	time.Sleep(50 * time.Millisecond)
	if got := tr.connectCount(); got != 2 {
		t.Fatalf("connects = %d, want exactly 2", got)
	}
}

func TestReconnectBudgetExhaustsAndResets(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	cfg := fastConfig()
	cfg.MaxReconnectAttempts = 2
	m := New(cfg, tr, logx.Nop(), nil)

	m.Connect()
	// Each close consumes one attempt; the reconnect goes through
	// because the fake transport accepts Connect immediately.
	for i := 0; i < cfg.MaxReconnectAttempts; i++ {
		tr.events <- transport.Event{Kind: transport.EventClosed, Reason: "flap"}
		want := i + 2
		waitFor(t, fmt.Sprintf("reconnect %d", i+1), func() bool { return tr.connectCount() == want })
	}

	// Budget spent: the next close resets the counter and stays down.
	tr.events <- transport.Event{Kind: transport.EventClosed, Reason: "flap"}
	waitFor(t, "disconnected", func() bool { return m.State() == StateDisconnected })
	time.Sleep(50 * time.Millisecond)

	if got := tr.connectCount(); got != cfg.MaxReconnectAttempts+1 {
		t.Fatalf("connects = %d, want %d", got, cfg.MaxReconnectAttempts+1)
	}
	if got := m.Snapshot().Attempts; got != 0 {
		t.Fatalf("attempts = %d, want 0 after reset", got)
	}

	// Manual connect works again.
	m.Connect()
	if got := tr.connectCount(); got != cfg.MaxReconnectAttempts+2 {
		t.Fatalf("manual connect refused: connects = %d", got)
	}
}

func TestFatalErrorEntersErrorState(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	m := New(fastConfig(), tr, logx.Nop(), nil)

	m.Connect()
	tr.events <- transport.Event{Kind: transport.EventFatal, Err: fmt.Errorf("banned")}
	waitFor(t, "error state or retry", func() bool {
		// The retry fires quickly in tests; accept either observation.
		s := m.State()
		return s == StateError || s == StateConnecting
	})
	waitFor(t, "retry connect", func() bool { return tr.connectCount() >= 2 })
}

func TestTransitionLogBounded(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	cfg := fastConfig()
	cfg.LogCapacity = 5
	cfg.MaxReconnectAttempts = 1000
	m := New(cfg, tr, logx.Nop(), nil)

	m.Connect()
	for i := 0; i < 20; i++ {
		tr.events <- transport.Event{Kind: transport.EventOpened}
		waitFor(t, "connected", m.Connected)
		tr.events <- transport.Event{Kind: transport.EventClosed, Reason: "flap"}
		waitFor(t, "disconnected observed", func() bool { return m.State() != StateConnected })
	}

	snap := m.Snapshot()
	if len(snap.Log) != cfg.LogCapacity {
		t.Fatalf("log len = %d, want %d", len(snap.Log), cfg.LogCapacity)
	}
	// Newest first.
	for i := 1; i < len(snap.Log); i++ {
		if snap.Log[i].At.After(snap.Log[i-1].At) {
			t.Fatal("log must be ordered newest first")
		}
	}
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	m := New(fastConfig(), tr, logx.Nop(), nil)

	m.Connect()
	tr.events <- transport.Event{Kind: transport.EventOpened}
	waitFor(t, "connected", m.Connected)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := m.State(); got != StateDisconnected {
		t.Fatalf("state after shutdown = %s", got)
	}
}
