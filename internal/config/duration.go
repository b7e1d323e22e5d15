package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDurationField parses a YAML duration string. On top of the
// stdlib forms ("30m", "1h30m") it accepts a day suffix ("7d",
// "1d12h") since cooldowns and report windows are often whole days.
// Empty input parses to zero so callers can fall back to defaults.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	if i := strings.IndexByte(s, 'd'); i > 0 {
		days, err := strconv.Atoi(s[:i])
		if err == nil {
			rest := time.Duration(0)
			if tail := s[i+1:]; tail != "" {
				rest, err = time.ParseDuration(tail)
			}
			if err == nil && days >= 0 && rest >= 0 {
				return time.Duration(days)*24*time.Hour + rest, nil
			}
		}
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for
// unset or zero fields.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
