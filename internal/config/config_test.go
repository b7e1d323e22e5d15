package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  poll_timeout: 10s
staff:
  chat_id: -100200300
  staff_user_ids: [11, 22]
panel:
  chat_id: -100200300
  refresh_interval: 60s
  recent_window: 30m
  max_recent: 5
duty:
  active:
    cooldown: 30m
    requirements:
      messages_per_hour: 15
      voice_minutes_per_hour: 10
      require_both: false
  invisible:
    cooldown: 45m
    verification:
      interval: {min: 20m, max: 40m}
      response_time: 5m
presence:
  poll_interval: 5s
  idle_after: 10m
  offline_after: 30m
points:
  messages: {per_message: 0.1, bonus_threshold: 500, bonus_amount: 0.05}
  voice: {per_minute: 0.2, minimum_session: 5}
  verification: {success: 5, failure: 10}
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
  telegram: {enabled: false, chat_id: 0, min_level: warn, rate_per_sec: 1}
audit:
  chat_id: -100400500
storage:
  path: ./test.db
  busy_timeout: 2s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSample(t *testing.T) {
	m := NewManager(writeConfig(t, sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if got := len(cfg.Staff.UserIDs); got != 2 {
		t.Fatalf("staff ids = %d, want 2", got)
	}
	if !cfg.Staff.IsStaff(22) || cfg.Staff.IsStaff(33) {
		t.Fatal("IsStaff misclassified")
	}
	if cfg.Duty.Invisible.Verification.Interval.Max != "40m" {
		t.Fatalf("interval.max = %q", cfg.Duty.Invisible.Verification.Interval.Max)
	}
	d, err := ParseDurationField("duty.active.cooldown", cfg.Duty.Active.Cooldown)
	if err != nil || d != 30*time.Minute {
		t.Fatalf("cooldown = %v, err %v", d, err)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, sampleYAML+"\nbogus_section:\n  x: 1\n")
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		m := NewManager(writeConfig(t, sampleYAML))
		cfg, err := m.Parse()
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = " " }},
		{"missing panel chat", func(c *Config) { c.Panel.ChatID = 0 }},
		{"bad duration", func(c *Config) { c.Presence.PollInterval = "soon" }},
		{"negative duration", func(c *Config) { c.Duty.Active.Cooldown = "-5m" }},
		{"interval max below min", func(c *Config) {
			c.Duty.Invisible.Verification.Interval.Min = "40m"
			c.Duty.Invisible.Verification.Interval.Max = "20m"
		}},
		{"negative requirement", func(c *Config) { c.Duty.Active.Requirements.MessagesPerHour = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 7*time.Second)
	if err != nil || d != 7*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "90s", 7*time.Second)
	if err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "nope", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestReloadHonorsValidator(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Telegram.Token != "123:abc" {
			return errors.New("telegram.token cannot change at runtime")
		}
		return nil
	})

	rejected := strings.Replace(sampleYAML, `token: "123:abc"`, `token: "456:def"`, 1)
	if err := os.WriteFile(path, []byte(rejected), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload(context.Background())
	if got := m.Get().Telegram.Token; got != "123:abc" {
		t.Fatalf("rejected config was committed: token %q", got)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	accepted := strings.Replace(sampleYAML, "max_recent: 5", "max_recent: 7", 1)
	if err := os.WriteFile(path, []byte(accepted), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload(context.Background())
	if got := m.Get().Panel.MaxRecent; got != 7 {
		t.Fatalf("accepted config not committed: max_recent %d", got)
	}
	select {
	case cfg := <-ch:
		if cfg.Panel.MaxRecent != 7 {
			t.Fatalf("published max_recent = %d, want 7", cfg.Panel.MaxRecent)
		}
	default:
		t.Fatal("accepted config was not published")
	}
}

func TestParseDurationDaySuffix(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"7d", 7 * 24 * time.Hour},
		{"1d12h", 36 * time.Hour},
		{"0d", 0},
	}
	for _, tc := range cases {
		d, err := ParseDurationField("x", tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if d != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.raw, d, tc.want)
		}
	}
	if _, err := ParseDurationField("x", "xd"); err == nil {
		t.Fatal("expected error for xd")
	}
}
