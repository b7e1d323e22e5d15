// Package audit mirrors duty transitions into a Telegram audit channel and
// persists verification outcomes. Everything here is best-effort: audit
// failures are logged, never propagated into the lifecycle.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dutybot/internal/duty"
	kit "dutybot/internal/transport"
	logx "dutybot/pkg/logx"
)

type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type VerificationStore interface {
	AddVerification(ctx context.Context, userID int64, sessionID string, at time.Time, success bool) error
}

type Sink struct {
	sender Sender
	store  VerificationStore
	log    logx.Logger
	name   func(int64) string

	mu     sync.RWMutex
	chatID int64
}

func New(chatID int64, sender Sender, store VerificationStore, name func(int64) string, log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{sender: sender, store: store, log: log, name: name, chatID: chatID}
}

func (s *Sink) SetChatID(chatID int64) {
	s.mu.Lock()
	s.chatID = chatID
	s.mu.Unlock()
}

func (s *Sink) post(ctx context.Context, text string) {
	s.mu.RLock()
	chatID := s.chatID
	s.mu.RUnlock()
	if chatID == 0 || s.sender == nil {
		return
	}
	_, err := s.sender.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text,
		&kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		s.log.Warn("audit post failed", logx.Err(err))
	}
}

func (s *Sink) display(userID int64) string {
	if s.name != nil {
		if n := s.name(userID); n != "" {
			return n
		}
	}
	return fmt.Sprintf("user %d", userID)
}

func (s *Sink) DutyEnter(ctx context.Context, userID int64, mode duty.Mode) {
	marker := "🟢"
	if mode == duty.ModeInvisible {
		marker = "🔵"
	}
	s.post(ctx, fmt.Sprintf("%s <b>%s</b> went on duty (%s)", marker, s.display(userID), mode))
}

func (s *Sink) DutyLeave(ctx context.Context, userID int64, mode duty.Mode, duration time.Duration, reason string, forced bool) {
	if forced {
		s.post(ctx, fmt.Sprintf("❌ <b>%s</b>'s %s duty was terminated after %s: %s",
			s.display(userID), mode, roundDuration(duration), reason))
		return
	}
	s.post(ctx, fmt.Sprintf("✅ <b>%s</b> went off duty after %s (%s)",
		s.display(userID), roundDuration(duration), mode))
}

// VerificationSent records that a challenge went out. The code itself stays
// out of the audit channel.
func (s *Sink) VerificationSent(ctx context.Context, userID int64, code string) {
	s.log.Debug("verification challenge sent", logx.Int64("user", userID))
	s.post(ctx, fmt.Sprintf("📨 verification challenge sent to <b>%s</b>", s.display(userID)))
}

func (s *Sink) VerificationResult(ctx context.Context, userID int64, sessionID string, success bool, reason string) {
	if s.store != nil {
		if err := s.store.AddVerification(ctx, userID, sessionID, time.Now(), success); err != nil {
			s.log.Warn("persisting verification outcome failed",
				logx.Int64("user", userID), logx.Err(err))
		}
	}
	if success {
		s.post(ctx, fmt.Sprintf("✔️ <b>%s</b> passed verification", s.display(userID)))
	} else {
		s.post(ctx, fmt.Sprintf("✖️ <b>%s</b> failed verification: %s", s.display(userID), reason))
	}
}

func roundDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}
