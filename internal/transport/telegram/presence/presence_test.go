package presence

import (
	"testing"
	"time"

	kit "dutybot/internal/transport"
	logx "dutybot/pkg/logx"
)

func TestClassification(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(10*time.Minute, 30*time.Minute, logx.Nop())
	now := base
	tr.now = func() time.Time { return now }

	if got := tr.Presence(1); got != kit.PresenceOffline {
		t.Fatalf("never-seen user = %q, want offline", got)
	}

	tr.Observe(1, base)
	tests := []struct {
		age  time.Duration
		want kit.Presence
	}{
		{0, kit.PresenceOnline},
		{9 * time.Minute, kit.PresenceOnline},
		{10 * time.Minute, kit.PresenceIdle},
		{29 * time.Minute, kit.PresenceIdle},
		{30 * time.Minute, kit.PresenceOffline},
		{5 * time.Hour, kit.PresenceOffline},
	}
	for _, tt := range tests {
		now = base.Add(tt.age)
		if got := tr.Presence(1); got != tt.want {
			t.Errorf("age %v: got %q, want %q", tt.age, got, tt.want)
		}
	}
}

func TestObserveKeepsLatest(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(10*time.Minute, 30*time.Minute, logx.Nop())
	now := base.Add(time.Hour)
	tr.now = func() time.Time { return now }

	tr.Observe(1, base.Add(50*time.Minute))
	tr.Observe(1, base.Add(20*time.Minute)) // out-of-order, must not regress

	if got := tr.Presence(1); got != kit.PresenceIdle {
		t.Fatalf("got %q, want idle from the newest observation", got)
	}
}

func TestThresholdReload(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(10*time.Minute, 30*time.Minute, logx.Nop())
	now := base.Add(15 * time.Minute)
	tr.now = func() time.Time { return now }

	tr.Observe(1, base)
	if got := tr.Presence(1); got != kit.PresenceIdle {
		t.Fatalf("before reload: got %q, want idle", got)
	}

	tr.SetThresholds(20*time.Minute, time.Hour)
	if got := tr.Presence(1); got != kit.PresenceOnline {
		t.Fatalf("after reload: got %q, want online", got)
	}
}

func TestForgetAndPrune(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(10*time.Minute, 30*time.Minute, logx.Nop())
	now := base
	tr.now = func() time.Time { return now }

	tr.Observe(1, base)
	tr.Forget(1)
	if got := tr.Presence(1); got != kit.PresenceOffline {
		t.Fatalf("forgotten user = %q, want offline", got)
	}

	tr.Observe(2, base)
	now = base.Add(5 * time.Hour) // past 4x the offline window
	tr.Prune()
	tr.mu.RLock()
	_, kept := tr.lastSeen[2]
	tr.mu.RUnlock()
	if kept {
		t.Fatal("stale record survived pruning")
	}
}
