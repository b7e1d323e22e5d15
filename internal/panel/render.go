package panel

import (
	"fmt"
	"html"
	"strings"
	"time"

	"dutybot/internal/duty"
)

// Snapshot is everything the renderer needs, already fetched. Rendering is
// pure so it can be tested without a store or a bot.
type Snapshot struct {
	Now    time.Time
	Active []duty.Session
	Recent []duty.Session

	// Name resolves a user ID to a display name; nil falls back to the ID.
	Name func(userID int64) string
}

func (s Snapshot) name(userID int64) string {
	if s.Name != nil {
		if n := s.Name(userID); n != "" {
			return html.EscapeString(n)
		}
	}
	return fmt.Sprintf("user %d", userID)
}

// Render produces the panel body in Telegram HTML.
func Render(s Snapshot) string {
	var b strings.Builder
	b.WriteString("<b>📋 Staff Duty</b>\n\n")

	if len(s.Active) == 0 {
		b.WriteString("Nobody is on duty right now.\n")
	} else {
		b.WriteString(fmt.Sprintf("<b>On duty (%d)</b>\n", len(s.Active)))
		for _, sess := range s.Active {
			marker := "🟢"
			if sess.Mode == duty.ModeInvisible {
				marker = "🔵"
			}
			b.WriteString(fmt.Sprintf("%s %s · %s\n",
				marker, s.name(sess.UserID), sinceLabel(s.Now.Sub(sess.StartTime))))
		}
	}

	if len(s.Recent) > 0 {
		b.WriteString("\n<b>Recently off duty</b>\n")
		for _, sess := range s.Recent {
			marker := "✅"
			if sess.Status == duty.StatusTerminated {
				marker = "❌"
			}
			b.WriteString(fmt.Sprintf("%s %s · %s\n",
				marker, s.name(sess.UserID), sinceLabel(s.Now.Sub(sess.EndTime))+" ago"))
		}
	}

	b.WriteString(fmt.Sprintf("\n<i>updated %s</i>", s.Now.Format("15:04:05")))
	return b.String()
}

func sinceLabel(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	m := int(d.Minutes())
	switch {
	case m < 1:
		return "just now"
	case m < 60:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%dh %dm", m/60, m%60)
	}
}
