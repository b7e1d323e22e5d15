package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"dutybot/internal/config"
	logx "dutybot/pkg/logx"
)

// startJobs registers the periodic work: the presence sweep, the hourly
// counter reset, the panel refresh, and housekeeping.
func (a *App) startJobs(cfg *config.Config) {
	a.cron = cron.New()

	poll, _ := config.ParseDurationOrDefault("presence.poll_interval", cfg.Presence.PollInterval, 5*time.Second)
	refresh, _ := config.ParseDurationOrDefault("panel.refresh_interval", cfg.Panel.RefreshInterval, time.Minute)

	a.addJob("presence.poll", "@every "+poll.String(), func(ctx context.Context) {
		a.watcher.Poll(ctx)
	})

	a.addJob("panel.refresh", "@every "+refresh.String(), func(ctx context.Context) {
		a.panel.RequestSync()
	})

	// The activity quota works on a fixed hourly cadence, not per-session
	// anchors: counters for everyone currently on duty reset together.
	a.addJob("activity.hourly_reset", "@every 1h", a.resetHourlyCounters)

	// Points score a rolling week; the persisted weekly counters roll over
	// Monday at midnight.
	a.addJob("activity.weekly_reset", "0 0 * * 1", func(ctx context.Context) {
		if err := a.store.ResetWeeklyCounters(ctx); err != nil {
			a.log.Warn("weekly counter reset failed", logx.Err(err))
		}
	})

	a.addJob("presence.prune", "@every 1h", func(ctx context.Context) {
		a.presence.Prune()
	})

	a.cron.Start()
}

func (a *App) addJob(name, spec string, fn func(ctx context.Context)) {
	_, err := a.cron.AddFunc(spec, func() {
		ctx := a.sup.Context()
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	})
	if err != nil {
		a.log.Error("registering job failed", logx.String("job", name), logx.String("spec", spec), logx.Err(err))
	}
}

func (a *App) resetHourlyCounters(ctx context.Context) {
	sessions, err := a.store.ActiveSessions(ctx)
	if err != nil {
		a.log.Warn("hourly reset: loading active sessions failed", logx.Err(err))
		return
	}
	if len(sessions) == 0 {
		return
	}
	ids := make([]int64, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.UserID)
	}
	if err := a.store.ResetHourlyCounters(ctx, ids); err != nil {
		a.log.Warn("hourly reset failed", logx.Err(err))
		return
	}
	a.log.Debug("hourly counters reset", logx.Int("users", len(ids)))
}
