package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks structural invariants and every duration field. It is run on
// initial load and again before any hot reload is committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if cfg.Panel.ChatID == 0 {
		return errors.New("panel.chat_id is required")
	}
	if cfg.Panel.MaxRecent < 0 {
		return errors.New("panel.max_recent must be >= 0")
	}
	if cfg.Duty.Active.Requirements.MessagesPerHour < 0 ||
		cfg.Duty.Active.Requirements.VoiceMinutesPerHour < 0 {
		return errors.New("duty.active.requirements must be >= 0")
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"panel.refresh_interval", cfg.Panel.RefreshInterval},
		{"panel.recent_window", cfg.Panel.RecentWindow},
		{"duty.active.cooldown", cfg.Duty.Active.Cooldown},
		{"duty.invisible.cooldown", cfg.Duty.Invisible.Cooldown},
		{"duty.invisible.verification.interval.min", cfg.Duty.Invisible.Verification.Interval.Min},
		{"duty.invisible.verification.interval.max", cfg.Duty.Invisible.Verification.Interval.Max},
		{"duty.invisible.verification.response_time", cfg.Duty.Invisible.Verification.ResponseTime},
		{"presence.poll_interval", cfg.Presence.PollInterval},
		{"presence.idle_after", cfg.Presence.IdleAfter},
		{"presence.offline_after", cfg.Presence.OfflineAfter},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	min, _ := ParseDurationField("", cfg.Duty.Invisible.Verification.Interval.Min)
	max, _ := ParseDurationField("", cfg.Duty.Invisible.Verification.Interval.Max)
	if min > 0 && max > 0 && max < min {
		return fmt.Errorf("duty.invisible.verification.interval: max %q < min %q",
			cfg.Duty.Invisible.Verification.Interval.Max, cfg.Duty.Invisible.Verification.Interval.Min)
	}
	return nil
}
