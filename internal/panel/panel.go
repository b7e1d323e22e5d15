// Package panel keeps a single pinned-style message in the staff chat in sync
// with the persisted duty state. Components never render directly: they poke
// RequestSync and the service re-reads the store and edits the message.
package panel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"dutybot/internal/duty"
	kit "dutybot/internal/transport"
	logx "dutybot/pkg/logx"
)

type Config struct {
	ChatID       int64
	RecentWindow time.Duration
	MaxRecent    int
}

type Store interface {
	ActiveSessions(ctx context.Context) ([]duty.Session, error)
	RecentEnded(ctx context.Context, since time.Time, limit int) ([]duty.Session, error)
	PanelRef(ctx context.Context) (chatID int64, messageID int, ok bool, err error)
	SavePanelRef(ctx context.Context, chatID int64, messageID int) error
}

type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
}

type Service struct {
	store  Store
	sender Sender
	log    logx.Logger
	name   func(int64) string

	// pokes carries pending sync requests. Capacity 1: a request while one
	// is already queued is the same request.
	pokes chan struct{}

	mu  sync.RWMutex
	cfg Config
}

func New(cfg Config, store Store, sender Sender, name func(int64) string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:  store,
		sender: sender,
		log:    log,
		name:   name,
		cfg:    cfg,
		pokes:  make(chan struct{}, 1),
	}
}

func (s *Service) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// RequestSync asks for a re-render. Non-blocking; callers fire it after every
// transition and never wait for the edit.
func (s *Service) RequestSync() {
	select {
	case s.pokes <- struct{}{}:
	default:
	}
}

// Run consumes sync requests until ctx is done. Bursts collapse into one
// render via a short debounce.
func (s *Service) Run(ctx context.Context) {
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pokes:
			if pending == nil {
				pending = time.After(300 * time.Millisecond)
			}
		case <-pending:
			pending = nil
			s.Sync(ctx)
		}
	}
}

// Sync renders from the store and edits the panel message, creating it on
// first run or when the saved message is gone.
func (s *Service) Sync(ctx context.Context) {
	cfg := s.config()
	if cfg.ChatID == 0 {
		return
	}

	now := time.Now()
	active, err := s.store.ActiveSessions(ctx)
	if err != nil {
		s.log.Warn("panel: loading active sessions failed", logx.Err(err))
		return
	}
	window := cfg.RecentWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	recent, err := s.store.RecentEnded(ctx, now.Add(-window), cfg.MaxRecent)
	if err != nil {
		s.log.Warn("panel: loading recent sessions failed", logx.Err(err))
		return
	}

	text := Render(Snapshot{Now: now, Active: active, Recent: recent, Name: s.name})
	opt := &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: keyboard(),
	}

	chatID, messageID, ok, err := s.store.PanelRef(ctx)
	if err != nil {
		s.log.Warn("panel: loading message ref failed", logx.Err(err))
		return
	}
	if ok && chatID == cfg.ChatID {
		err := s.sender.EditText(ctx, kit.MessageRef{ChatID: chatID, MessageID: messageID}, text, opt)
		if err == nil {
			return
		}
		// Telegram rejects no-op edits; anything else means the message is
		// unusable and we post a fresh one.
		if isNotModified(err) {
			return
		}
		s.log.Warn("panel: edit failed, reposting", logx.Err(err))
	}

	ref, err := s.sender.SendText(ctx, kit.ChatTarget{ChatID: cfg.ChatID}, text, opt)
	if err != nil {
		s.log.Warn("panel: send failed", logx.Err(err))
		return
	}
	if err := s.store.SavePanelRef(ctx, ref.ChatID, ref.MessageID); err != nil {
		s.log.Warn("panel: saving message ref failed", logx.Err(err))
	}
}

func keyboard() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	enter := rm.Data("🚨 Go on duty", "duty", "enter")
	leave := rm.Data("👋 Go off duty", "duty", "leave")
	rm.Inline(rm.Row(enter, leave))
	return rm
}

func isNotModified(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, tele.ErrTrueResult) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
