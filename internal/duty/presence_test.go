package duty

import (
	"context"
	"testing"

	kit "dutybot/internal/transport"
)

func TestPollTerminatesOnPresenceDrop(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	w := NewPresenceWatcher(h.ctrl, h.pres, h.ctrl.log)

	h.pres.set(1, kit.PresenceOnline)
	w.Track(1)

	if _, err := h.ctrl.Enter(ctx, 1, ModeActive); err != nil {
		t.Fatalf("enter: %v", err)
	}

	// No transition, no action.
	w.Poll(ctx)
	if !h.ctrl.OnDuty(1) {
		t.Fatal("session ended without a presence change")
	}

	h.pres.set(1, kit.PresenceOffline)
	w.Poll(ctx)
	if h.ctrl.OnDuty(1) {
		t.Fatal("session survived going offline")
	}
	if ev, ok := h.audit.last("leave"); !ok || ev.reason != "went offline" {
		t.Fatalf("leave audit = %+v, want went-offline", ev)
	}

	// Still offline on the next sweep: no repeated termination attempt noise.
	w.Poll(ctx)
	if got := h.store.closeCount(); got != 1 {
		t.Fatalf("closes = %d, want 1", got)
	}
}

func TestPollTerminatesOnIdle(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	w := NewPresenceWatcher(h.ctrl, h.pres, h.ctrl.log)

	h.pres.set(1, kit.PresenceOnline)
	w.Track(1)
	if _, err := h.ctrl.Enter(ctx, 1, ModeInvisible); err != nil {
		t.Fatalf("enter: %v", err)
	}

	h.pres.set(1, kit.PresenceIdle)
	w.Poll(ctx)
	if h.ctrl.OnDuty(1) {
		t.Fatal("idle should terminate the session")
	}
}

func TestForgetStopsMonitoring(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	w := NewPresenceWatcher(h.ctrl, h.pres, h.ctrl.log)

	w.Track(1)
	if !w.Tracked(1) {
		t.Fatal("user not tracked after Track")
	}
	w.Forget(1)
	if w.Tracked(1) {
		t.Fatal("user still tracked after Forget")
	}

	if _, err := h.ctrl.Enter(ctx, 1, ModeActive); err != nil {
		t.Fatalf("enter: %v", err)
	}
	h.pres.set(1, kit.PresenceOffline)
	w.Poll(ctx)
	if !h.ctrl.OnDuty(1) {
		t.Fatal("untracked user's session was terminated by the watcher")
	}
}
