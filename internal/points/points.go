// Package points scores staff on their rolling weekly activity and
// verification record. The score is recomputed from persisted counters on
// demand rather than mutated incrementally, so a missed recalculation can
// never corrupt it.
package points

import (
	"context"
	"sync"
	"time"

	logx "dutybot/pkg/logx"
)

type Config struct {
	PerMessage       float64
	BonusThreshold   int // weekly messages needed for the bonus
	BonusAmount      float64
	PerVoiceMinute   float64
	PerVerifySuccess float64
	PerVerifyFailure float64 // subtracted
}

type Store interface {
	WeeklyActivity(ctx context.Context, userID int64) (messages, voiceMinutes int, err error)
	VerificationOutcomes(ctx context.Context, userID int64, since time.Time) (successes, failures int, err error)
	SetPoints(ctx context.Context, userID int64, points float64) error
}

type Calculator struct {
	store Store
	log   logx.Logger

	mu  sync.RWMutex
	cfg Config
}

func NewCalculator(cfg Config, store Store, log logx.Logger) *Calculator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Calculator{store: store, log: log, cfg: cfg}
}

func (c *Calculator) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Calculator) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Score is the pure scoring formula.
func Score(cfg Config, messages, voiceMinutes, verifySuccess, verifyFailure int) float64 {
	pts := float64(messages) * cfg.PerMessage
	if cfg.BonusThreshold > 0 && messages >= cfg.BonusThreshold {
		pts += cfg.BonusAmount
	}
	pts += float64(voiceMinutes) * cfg.PerVoiceMinute
	pts += float64(verifySuccess) * cfg.PerVerifySuccess
	pts -= float64(verifyFailure) * cfg.PerVerifyFailure
	if pts < 0 {
		pts = 0
	}
	return pts
}

// Recalculate recomputes and persists the user's score. Failures are logged;
// the next trigger retries from scratch.
func (c *Calculator) Recalculate(ctx context.Context, userID int64) {
	cfg := c.config()

	messages, voice, err := c.store.WeeklyActivity(ctx, userID)
	if err != nil {
		c.log.Warn("points: loading weekly activity failed", logx.Int64("user", userID), logx.Err(err))
		return
	}
	since := time.Now().Add(-7 * 24 * time.Hour)
	succ, fail, err := c.store.VerificationOutcomes(ctx, userID, since)
	if err != nil {
		c.log.Warn("points: loading verification outcomes failed", logx.Int64("user", userID), logx.Err(err))
		return
	}

	pts := Score(cfg, messages, voice, succ, fail)
	if err := c.store.SetPoints(ctx, userID, pts); err != nil {
		c.log.Warn("points: persisting score failed", logx.Int64("user", userID), logx.Err(err))
		return
	}
	c.log.Debug("points recalculated", logx.Int64("user", userID), logx.Float64("points", pts))
}
