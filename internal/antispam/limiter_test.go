package antispam

import (
	"errors"
	"testing"
	"time"

	"groupcast/internal/model"
	logx "groupcast/pkg/logx"
)

func fixedSettings(s model.AntiSpamSettings) SettingsFunc {
	return func() (model.AntiSpamSettings, error) { return s, nil }
}

func newTestLimiter(s model.AntiSpamSettings) (*Limiter, *time.Time) {
	l := New(fixedSettings(s), logx.Nop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowWithinWindow(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(model.AntiSpamSettings{Enabled: true, IntervalMinutes: 30, MaxPerGroup: 2})

	allowed := 0
	for i := 0; i < 3; i++ {
		if l.Allow("g1") {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed = %d, want 2", allowed)
	}
}

func TestWindowReset(t *testing.T) {
	t.Parallel()
	l, now := newTestLimiter(model.AntiSpamSettings{Enabled: true, IntervalMinutes: 30, MaxPerGroup: 1})

	if !l.Allow("g1") {
		t.Fatal("first send should be allowed")
	}
	if l.Allow("g1") {
		t.Fatal("second send in window should be denied")
	}

	*now = now.Add(31 * time.Minute)
	if !l.Allow("g1") {
		t.Fatal("send after window elapsed should be allowed")
	}
}

func TestDestinationsIndependent(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(model.AntiSpamSettings{Enabled: true, IntervalMinutes: 30, MaxPerGroup: 1})

	if !l.Allow("g1") || !l.Allow("g2") {
		t.Fatal("quota must be tracked per destination")
	}
}

func TestDisabledAlwaysAllows(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(model.AntiSpamSettings{Enabled: false, IntervalMinutes: 1, MaxPerGroup: 1})

	for i := 0; i < 10; i++ {
		if !l.Allow("g1") {
			t.Fatalf("call %d denied with limiter disabled", i)
		}
	}
}

func TestFailOpenOnSettingsError(t *testing.T) {
	t.Parallel()
	l := New(func() (model.AntiSpamSettings, error) {
		return model.AntiSpamSettings{}, errors.New("store unavailable")
	}, logx.Nop())

	if !l.Allow("g1") {
		t.Fatal("settings failure must fail open")
	}
}

func TestEvictStale(t *testing.T) {
	t.Parallel()
	l, now := newTestLimiter(model.AntiSpamSettings{Enabled: true, IntervalMinutes: 30, MaxPerGroup: 5})

	l.Allow("g1")
	l.Allow("g2")
	*now = now.Add(25 * time.Hour)
	l.Allow("g3")

	if n := l.evictStale(24 * time.Hour); n != 2 {
		t.Fatalf("evicted = %d, want 2", n)
	}
	l.mu.Lock()
	_, ok := l.entries["g3"]
	l.mu.Unlock()
	if !ok {
		t.Fatal("fresh entry must survive eviction")
	}
}
