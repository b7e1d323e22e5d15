package config

// Config is the full bot configuration.
//
// All duration-style fields are Go duration strings (e.g. "30s", "5m", "1h")
// and are validated before a config is committed.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Staff    StaffConfig    `yaml:"staff"`
	Panel    PanelConfig    `yaml:"panel"`
	Duty     DutyConfig     `yaml:"duty"`
	Presence PresenceConfig `yaml:"presence"`
	Points   PointsConfig   `yaml:"points"`
	Logging  LoggingConfig  `yaml:"logging"`
	Audit    AuditConfig    `yaml:"audit"`
	Storage  StorageConfig  `yaml:"storage"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout string `yaml:"poll_timeout"`
}

// StaffConfig names the monitored staff population. UserIDs is the capability
// source: only listed users may use the duty panel, and membership changes in
// ChatID add/remove them from presence monitoring.
type StaffConfig struct {
	ChatID  int64   `yaml:"chat_id"`
	UserIDs []int64 `yaml:"staff_user_ids"`
	// AdminIDs may force-end anyone's session via the /endduty command.
	AdminIDs []int64 `yaml:"admin_user_ids"`
}

type PanelConfig struct {
	ChatID          int64  `yaml:"chat_id"`
	RefreshInterval string `yaml:"refresh_interval"`
	// RecentWindow bounds how long ended sessions stay on the panel.
	RecentWindow string `yaml:"recent_window"`
	MaxRecent    int    `yaml:"max_recent"`
}

type DutyConfig struct {
	Active    ActiveModeConfig    `yaml:"active"`
	Invisible InvisibleModeConfig `yaml:"invisible"`
}

type ActiveModeConfig struct {
	Cooldown     string             `yaml:"cooldown"`
	Requirements RequirementsConfig `yaml:"requirements"`
}

type RequirementsConfig struct {
	MessagesPerHour     int  `yaml:"messages_per_hour"`
	VoiceMinutesPerHour int  `yaml:"voice_minutes_per_hour"`
	RequireBoth         bool `yaml:"require_both"`
}

type InvisibleModeConfig struct {
	Cooldown     string             `yaml:"cooldown"`
	Verification VerificationConfig `yaml:"verification"`
}

type VerificationConfig struct {
	Interval     IntervalConfig `yaml:"interval"`
	ResponseTime string         `yaml:"response_time"`
}

type IntervalConfig struct {
	Min string `yaml:"min"`
	Max string `yaml:"max"`
}

type PresenceConfig struct {
	PollInterval string `yaml:"poll_interval"`
	// Adapter heuristic thresholds: how old a member's last observed
	// activity may be before they count as idle / offline.
	IdleAfter    string `yaml:"idle_after"`
	OfflineAfter string `yaml:"offline_after"`
}

type PointsConfig struct {
	Messages     MessagePointsConfig      `yaml:"messages"`
	Voice        VoicePointsConfig        `yaml:"voice"`
	Verification VerificationPointsConfig `yaml:"verification"`
}

type MessagePointsConfig struct {
	PerMessage     float64 `yaml:"per_message"`
	BonusThreshold int     `yaml:"bonus_threshold"`
	BonusAmount    float64 `yaml:"bonus_amount"`
}

type VoicePointsConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	// MinimumSession is the shortest voice session (minutes) that earns credit.
	MinimumSession int `yaml:"minimum_session"`
}

type VerificationPointsConfig struct {
	Success float64 `yaml:"success"`
	// Failure is the penalty per failed verification, given as a positive
	// number.
	Failure float64 `yaml:"failure"`
}

type LoggingConfig struct {
	Level    string          `yaml:"level"`
	Console  bool            `yaml:"console"`
	File     LoggingFile     `yaml:"file"`
	Telegram LoggingTelegram `yaml:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `yaml:"enabled"`
	ChatID     int64  `yaml:"chat_id"`
	MinLevel   string `yaml:"min_level"`
	RatePerSec int    `yaml:"rate_per_sec"`
}

type AuditConfig struct {
	ChatID int64 `yaml:"chat_id"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"`
}

// IsStaff reports whether the user is in the configured staff list.
func (s StaffConfig) IsStaff(userID int64) bool {
	for _, id := range s.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (s StaffConfig) IsAdmin(userID int64) bool {
	for _, id := range s.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
