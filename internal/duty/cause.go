package duty

import "time"

// Cause identifies why a session ended. It deterministically drives the
// persisted status, the cooldown before re-entry, and the user-facing reason
// text; nothing in the system matches on reason strings.
type Cause string

const (
	CauseUserCompleted  Cause = "user_completed"
	CausePresenceLost   Cause = "presence_lost"
	CauseWrongCode      Cause = "verification_wrong_code"
	CauseNoResponse     Cause = "verification_timeout"
	CauseQuotaFailed    Cause = "quota_failed"
	CauseAdminOverride  Cause = "admin_override"
	CauseRestartInvalid Cause = "restart_invalid"
)

// Forced reports whether the end was a system decision rather than the
// member's own choice.
func (c Cause) Forced() bool { return c != CauseUserCompleted }

func (c Cause) Status() Status {
	if c.Forced() {
		return StatusTerminated
	}
	return StatusCompleted
}

// Cooldown returns how long the member must wait before re-entering after a
// session of the given mode ended with this cause.
func (c Cause) Cooldown(mode Mode, cfg Config) time.Duration {
	if !c.Forced() {
		return 0
	}
	if mode == ModeActive {
		return cfg.ActiveCooldown
	}
	return cfg.InvisibleCooldown
}

// Reason renders the human-readable reason. detail is cause-specific: the
// observed presence for CausePresenceLost, the missed requirements summary
// for CauseQuotaFailed, an optional note for CauseAdminOverride.
func (c Cause) Reason(detail string) string {
	switch c {
	case CauseUserCompleted:
		return "completed"
	case CausePresenceLost:
		return "went " + detail
	case CauseWrongCode:
		return "failed verification: wrong code"
	case CauseNoResponse:
		return "failed verification: no response"
	case CauseQuotaFailed:
		return "missed activity quota: " + detail
	case CauseAdminOverride:
		if detail != "" {
			return "ended by admin: " + detail
		}
		return "ended by admin"
	case CauseRestartInvalid:
		return "invalid on restart"
	}
	return string(c)
}
