package duty

import "time"

type Mode string

const (
	ModeActive    Mode = "active"
	ModeInvisible Mode = "invisible"
)

func (m Mode) Valid() bool { return m == ModeActive || m == ModeInvisible }

type Status string

const (
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusTerminated Status = "terminated"
)

// Session is one duty shift of one staff member. Rows are never deleted; at
// most one session per user may be StatusActive at a time. The controller
// enforces that, not the store.
type Session struct {
	ID        string
	UserID    int64
	Mode      Mode
	StartTime time.Time
	EndTime   time.Time // zero while live
	Status    Status
	EndCause  Cause // empty while live
}

// Counters is the rolling hourly activity read by the compliance check.
type Counters struct {
	MessagesHour     int
	VoiceMinutesHour int
}

// Config carries the duty knobs the core consumes, already parsed from the
// config file.
type Config struct {
	ActiveCooldown    time.Duration
	InvisibleCooldown time.Duration

	// Invisible-mode verification.
	MinInterval  time.Duration
	MaxInterval  time.Duration
	ResponseTime time.Duration

	// Active-mode quota.
	MessagesPerHour     int
	VoiceMinutesPerHour int
	RequireBoth         bool
	ComplianceInterval  time.Duration // defaults to one hour
}

func (c Config) complianceInterval() time.Duration {
	if c.ComplianceInterval > 0 {
		return c.ComplianceInterval
	}
	return time.Hour
}
