package duty

import (
	"testing"
	"time"
)

func TestCauseStatusAndCooldown(t *testing.T) {
	cfg := Config{ActiveCooldown: 30 * time.Minute, InvisibleCooldown: time.Hour}

	tests := []struct {
		cause      Cause
		forced     bool
		status     Status
		activeCD   time.Duration
		invisCD    time.Duration
		detail     string
		wantReason string
	}{
		{CauseUserCompleted, false, StatusCompleted, 0, 0, "", "completed"},
		{CausePresenceLost, true, StatusTerminated, 30 * time.Minute, time.Hour, "offline", "went offline"},
		{CauseWrongCode, true, StatusTerminated, 30 * time.Minute, time.Hour, "", "failed verification: wrong code"},
		{CauseNoResponse, true, StatusTerminated, 30 * time.Minute, time.Hour, "", "failed verification: no response"},
		{CauseQuotaFailed, true, StatusTerminated, 30 * time.Minute, time.Hour, "messages (1/5)", "missed activity quota: messages (1/5)"},
		{CauseAdminOverride, true, StatusTerminated, 30 * time.Minute, time.Hour, "", "ended by admin"},
		{CauseRestartInvalid, true, StatusTerminated, 30 * time.Minute, time.Hour, "", "invalid on restart"},
	}
	for _, tt := range tests {
		t.Run(string(tt.cause), func(t *testing.T) {
			if got := tt.cause.Forced(); got != tt.forced {
				t.Errorf("Forced() = %v, want %v", got, tt.forced)
			}
			if got := tt.cause.Status(); got != tt.status {
				t.Errorf("Status() = %v, want %v", got, tt.status)
			}
			if got := tt.cause.Cooldown(ModeActive, cfg); got != tt.activeCD {
				t.Errorf("Cooldown(active) = %v, want %v", got, tt.activeCD)
			}
			if got := tt.cause.Cooldown(ModeInvisible, cfg); got != tt.invisCD {
				t.Errorf("Cooldown(invisible) = %v, want %v", got, tt.invisCD)
			}
			if got := tt.cause.Reason(tt.detail); got != tt.wantReason {
				t.Errorf("Reason(%q) = %q, want %q", tt.detail, got, tt.wantReason)
			}
		})
	}
}

func TestAdminOverrideReasonWithNote(t *testing.T) {
	if got := CauseAdminOverride.Reason("schedule conflict"); got != "ended by admin: schedule conflict" {
		t.Fatalf("got %q", got)
	}
}
