package panel

import (
	"strings"
	"testing"
	"time"

	"dutybot/internal/duty"
)

func TestRenderEmpty(t *testing.T) {
	out := Render(Snapshot{Now: time.Now()})
	if !strings.Contains(out, "Nobody is on duty") {
		t.Fatalf("output missing empty-state line:\n%s", out)
	}
}

func TestRenderActiveAndRecent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	names := map[int64]string{1: "alice", 2: "bob", 3: "carol"}

	out := Render(Snapshot{
		Now: now,
		Active: []duty.Session{
			{UserID: 1, Mode: duty.ModeActive, StartTime: now.Add(-90 * time.Minute)},
			{UserID: 2, Mode: duty.ModeInvisible, StartTime: now.Add(-5 * time.Minute)},
		},
		Recent: []duty.Session{
			{UserID: 3, Mode: duty.ModeActive, Status: duty.StatusTerminated,
				StartTime: now.Add(-3 * time.Hour), EndTime: now.Add(-time.Hour)},
		},
		Name: func(id int64) string { return names[id] },
	})

	for _, want := range []string{
		"On duty (2)",
		"🟢 alice · 1h 30m",
		"🔵 bob · 5m",
		"Recently off duty",
		"❌ carol · 1h 0m ago",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEscapesNames(t *testing.T) {
	now := time.Now()
	out := Render(Snapshot{
		Now:    now,
		Active: []duty.Session{{UserID: 1, Mode: duty.ModeActive, StartTime: now}},
		Name:   func(int64) string { return "<b>evil</b>" },
	})
	if strings.Contains(out, "<b>evil</b>") {
		t.Fatalf("name not escaped:\n%s", out)
	}
	if !strings.Contains(out, "&lt;b&gt;evil&lt;/b&gt;") {
		t.Fatalf("escaped name missing:\n%s", out)
	}
}

func TestRenderFallsBackToUserID(t *testing.T) {
	now := time.Now()
	out := Render(Snapshot{
		Now:    now,
		Active: []duty.Session{{UserID: 42, Mode: duty.ModeActive, StartTime: now}},
	})
	if !strings.Contains(out, "user 42") {
		t.Fatalf("output missing ID fallback:\n%s", out)
	}
}

func TestSinceLabel(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{-time.Minute, "just now"},
		{2 * time.Minute, "2m"},
		{59 * time.Minute, "59m"},
		{60 * time.Minute, "1h 0m"},
		{125 * time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		if got := sinceLabel(tt.d); got != tt.want {
			t.Errorf("sinceLabel(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
