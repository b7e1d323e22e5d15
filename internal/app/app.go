// Package app assembles the bot: config, logging, storage, the Telegram
// adapter, the duty core, and the periodic jobs, and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dutybot/internal/audit"
	"dutybot/internal/config"
	"dutybot/internal/duty"
	"dutybot/internal/panel"
	"dutybot/internal/points"
	rtsup "dutybot/internal/runtime/supervisor"
	"dutybot/internal/storage"
	"dutybot/internal/tracker"
	kit "dutybot/internal/transport"
	tgadapter "dutybot/internal/transport/telegram/adapter"
	tgpresence "dutybot/internal/transport/telegram/presence"
	logx "dutybot/pkg/logx"

	"github.com/robfig/cron/v3"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store    *storage.Store
	adapter  *tgadapter.Adapter
	presence *tgpresence.Tracker
	staff    *staffDirectory
	names    *nameBook
	auditLog *audit.Sink
	points   *points.Calculator
	track    *tracker.Tracker
	ctrl     *duty.Controller
	watcher  *duty.PresenceWatcher
	panel    *panel.Service

	cron    *cron.Cron
	sup     *rtsup.Supervisor
	updates chan kit.Update
}

func New(configPath string) (*App, error) {
	cfgMgr := config.NewManager(configPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a := &App{
		cfgMgr: cfgMgr,
		staff:  newStaffDirectory(cfg.Staff.UserIDs),
		names:  newNameBook(),
	}

	// The token, database path and staff chat are baked into components at
	// construction; a reload cannot re-dial or re-open them.
	boot := cfg
	cfgMgr.SetValidator(func(_ context.Context, next *config.Config) error {
		switch {
		case next.Telegram.Token != boot.Telegram.Token:
			return fmt.Errorf("telegram.token cannot change at runtime; restart the bot")
		case next.Storage.Path != boot.Storage.Path:
			return fmt.Errorf("storage.path cannot change at runtime; restart the bot")
		case next.Staff.ChatID != boot.Staff.ChatID:
			return fmt.Errorf("staff.chat_id cannot change at runtime; restart the bot")
		}
		return nil
	})

	// The adapter exists before the log service (it is the service's Telegram
	// sink), so it boots on a console logger and gets the real one right after.
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	a.adapter, err = tgadapter.New(tgadapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		StaffChatID: cfg.Staff.ChatID,
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("creating telegram adapter: %w", err)
	}

	a.logSvc, a.log = logx.New(buildLogConfig(cfg), a.adapter)
	a.adapter.SetLogger(a.log.With(logx.String("comp", "telegram")))
	cfgMgr.SetLogger(a.log.With(logx.String("comp", "config")))

	a.store, err = storage.Open(buildStorageConfig(cfg), a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	idle, offline := presenceThresholds(cfg)
	a.presence = tgpresence.NewTracker(idle, offline, a.log.With(logx.String("comp", "presence")))

	a.points = points.NewCalculator(buildPointsConfig(cfg), a.store, a.log.With(logx.String("comp", "points")))
	a.track = tracker.New(buildTrackerConfig(cfg), a.store, a.points, a.log.With(logx.String("comp", "tracker")))

	a.auditLog = audit.New(cfg.Audit.ChatID, a.adapter, a.store, a.names.Name,
		a.log.With(logx.String("comp", "audit")))

	a.panel = panel.New(buildPanelConfig(cfg), a.store, a.adapter, a.names.Name,
		a.log.With(logx.String("comp", "panel")))

	a.ctrl = duty.NewController(buildDutyConfig(cfg), duty.ControllerDeps{
		Store:    a.store,
		Notifier: &dmNotifier{adapter: a.adapter},
		Audit:    a.auditLog,
		Presence: a.presence,
		Staff:    a.staff,
		Panel:    a.panel,
		Points:   a.points,
		Log:      a.log.With(logx.String("comp", "duty")),
	})

	a.watcher = duty.NewPresenceWatcher(a.ctrl, a.presence, a.log.With(logx.String("comp", "watcher")))

	return a, nil
}

func (a *App) Log() logx.Logger { return a.log }

// Start brings the bot up: network last-but-one, reconciliation after the
// adapter so termination DMs can be delivered.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		rtsup.WithCancelOnError(false),
	)
	a.ctrl.Bind(a.sup.Context())

	a.updates = make(chan kit.Update, 256)
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("starting telegram adapter: %w", err)
	}

	if err := a.ctrl.Reconcile(ctx); err != nil {
		a.log.Warn("startup reconciliation failed", logx.Err(err))
	}

	// Seed the watcher with everyone who could be on duty.
	cfg := a.cfgMgr.Get()
	for _, id := range cfg.Staff.UserIDs {
		a.watcher.Track(id)
	}

	a.sup.Go0("updates.dispatch", a.dispatchLoop)
	a.sup.Go0("panel.sync", a.panel.Run)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go0("config.watch", func(c context.Context) {
		if err := a.cfgMgr.Watch(c); err != nil && c.Err() == nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	})

	a.startJobs(cfg)
	a.panel.RequestSync()

	a.log.Info("bot started")
	return nil
}

// Stop shuts down in reverse order, bounded by ctx.
func (a *App) Stop(ctx context.Context) {
	if a.cron != nil {
		stopped := a.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
	if a.sup != nil {
		a.sup.Cancel()
	}
	_ = a.adapter.Stop(ctx)
	if a.sup != nil {
		if err := a.sup.Wait(ctx); err != nil {
			a.log.Warn("shutdown incomplete", logx.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing storage failed", logx.Err(err))
	}
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
}

// reloadLoop applies committed config changes to the running components.
func (a *App) reloadLoop(ctx context.Context) {
	ch := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(buildLogConfig(cfg))

	// A staff grant through the config is a grant like any other: the new
	// member must be presence-monitored, and a revoked one must not be.
	added, removed := diffIDs(a.staff.IDs(), cfg.Staff.UserIDs)
	a.staff.SetIDs(cfg.Staff.UserIDs)
	for _, id := range added {
		a.watcher.Track(id)
	}
	for _, id := range removed {
		a.watcher.Forget(id)
	}
	a.ctrl.SetConfig(buildDutyConfig(cfg))
	a.panel.SetConfig(buildPanelConfig(cfg))
	a.points.SetConfig(buildPointsConfig(cfg))
	a.track.SetConfig(buildTrackerConfig(cfg))
	a.auditLog.SetChatID(cfg.Audit.ChatID)
	idle, offline := presenceThresholds(cfg)
	a.presence.SetThresholds(idle, offline)
	a.panel.RequestSync()
	a.log.Info("configuration reloaded")
}

// ---- config translation ----

func buildLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func buildStorageConfig(cfg *config.Config) storage.Config {
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	path := cfg.Storage.Path
	if path == "" {
		path = "data/dutybot.db"
	}
	return storage.Config{Path: path, BusyTimeout: busy}
}

func buildDutyConfig(cfg *config.Config) duty.Config {
	activeCD, _ := config.ParseDurationOrDefault("duty.active.cooldown", cfg.Duty.Active.Cooldown, 30*time.Minute)
	invisCD, _ := config.ParseDurationOrDefault("duty.invisible.cooldown", cfg.Duty.Invisible.Cooldown, time.Hour)
	minIv, _ := config.ParseDurationOrDefault("duty.invisible.verification.interval.min", cfg.Duty.Invisible.Verification.Interval.Min, 15*time.Minute)
	maxIv, _ := config.ParseDurationOrDefault("duty.invisible.verification.interval.max", cfg.Duty.Invisible.Verification.Interval.Max, 45*time.Minute)
	resp, _ := config.ParseDurationOrDefault("duty.invisible.verification.response_time", cfg.Duty.Invisible.Verification.ResponseTime, 5*time.Minute)
	return duty.Config{
		ActiveCooldown:      activeCD,
		InvisibleCooldown:   invisCD,
		MinInterval:         minIv,
		MaxInterval:         maxIv,
		ResponseTime:        resp,
		MessagesPerHour:     cfg.Duty.Active.Requirements.MessagesPerHour,
		VoiceMinutesPerHour: cfg.Duty.Active.Requirements.VoiceMinutesPerHour,
		RequireBoth:         cfg.Duty.Active.Requirements.RequireBoth,
	}
}

func buildPanelConfig(cfg *config.Config) panel.Config {
	window, _ := config.ParseDurationOrDefault("panel.recent_window", cfg.Panel.RecentWindow, 24*time.Hour)
	return panel.Config{
		ChatID:       cfg.Panel.ChatID,
		RecentWindow: window,
		MaxRecent:    cfg.Panel.MaxRecent,
	}
}

func buildPointsConfig(cfg *config.Config) points.Config {
	return points.Config{
		PerMessage:       cfg.Points.Messages.PerMessage,
		BonusThreshold:   cfg.Points.Messages.BonusThreshold,
		BonusAmount:      cfg.Points.Messages.BonusAmount,
		PerVoiceMinute:   cfg.Points.Voice.PerMinute,
		PerVerifySuccess: cfg.Points.Verification.Success,
		PerVerifyFailure: cfg.Points.Verification.Failure,
	}
}

func buildTrackerConfig(cfg *config.Config) tracker.Config {
	return tracker.Config{
		MinimumVoiceSession: time.Duration(cfg.Points.Voice.MinimumSession) * time.Minute,
	}
}

func presenceThresholds(cfg *config.Config) (idle, offline time.Duration) {
	idle, _ = config.ParseDurationOrDefault("presence.idle_after", cfg.Presence.IdleAfter, 10*time.Minute)
	offline, _ = config.ParseDurationOrDefault("presence.offline_after", cfg.Presence.OfflineAfter, 30*time.Minute)
	return idle, offline
}

// ---- small collaborators ----

// dmNotifier delivers direct messages. Telegram private chats share the
// user's ID as the chat ID.
type dmNotifier struct {
	adapter *tgadapter.Adapter
}

func (n *dmNotifier) DirectMessage(ctx context.Context, userID int64, text string) error {
	_, err := n.adapter.SendText(ctx, kit.ChatTarget{ChatID: userID}, text, nil)
	return err
}

// staffDirectory answers staff membership with hot-reloadable IDs.
type staffDirectory struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func newStaffDirectory(ids []int64) *staffDirectory {
	d := &staffDirectory{}
	d.SetIDs(ids)
	return d
}

func (d *staffDirectory) SetIDs(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	d.mu.Lock()
	d.ids = m
	d.mu.Unlock()
}

func (d *staffDirectory) IsStaff(userID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.ids[userID]
	return ok
}

func (d *staffDirectory) IDs() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]int64, 0, len(d.ids))
	for id := range d.ids {
		out = append(out, id)
	}
	return out
}

// diffIDs returns the members of next missing from prev and vice versa.
func diffIDs(prev, next []int64) (added, removed []int64) {
	in := func(ids []int64, id int64) bool {
		for _, v := range ids {
			if v == id {
				return true
			}
		}
		return false
	}
	for _, id := range next {
		if !in(prev, id) {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if !in(next, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// nameBook remembers the usernames we have seen so the panel and audit
// channel can show names instead of raw IDs.
type nameBook struct {
	mu    sync.RWMutex
	names map[int64]string
}

func newNameBook() *nameBook {
	return &nameBook{names: map[int64]string{}}
}

func (b *nameBook) Learn(userID int64, username string) {
	if username == "" {
		return
	}
	b.mu.Lock()
	b.names[userID] = username
	b.mu.Unlock()
}

func (b *nameBook) Name(userID int64) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.names[userID]
}
