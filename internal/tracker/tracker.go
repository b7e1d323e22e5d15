// Package tracker records the staff activity that feeds quota checks and
// points: message counts and voice-chat minutes.
package tracker

import (
	"context"
	"sync"
	"time"

	logx "dutybot/pkg/logx"
)

type Store interface {
	AddMessages(ctx context.Context, userID int64, n int, at time.Time) error
	AddVoiceMinutes(ctx context.Context, userID int64, minutes int, at time.Time) error
}

type PointsRecalc interface {
	Recalculate(ctx context.Context, userID int64)
}

type Config struct {
	// MinimumVoiceSession is the shortest voice stint that earns credit;
	// shorter joins count for nothing.
	MinimumVoiceSession time.Duration
}

type Tracker struct {
	store  Store
	points PointsRecalc
	log    logx.Logger

	mu    sync.Mutex
	cfg   Config
	voice map[int64]time.Time // userID -> join time

	now func() time.Time
}

func New(cfg Config, store Store, points PointsRecalc, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{
		store:  store,
		points: points,
		log:    log,
		cfg:    cfg,
		voice:  map[int64]time.Time{},
		now:    time.Now,
	}
}

func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

// RecordMessage credits one staff-chat message.
func (t *Tracker) RecordMessage(ctx context.Context, userID int64) {
	now := t.now()
	if err := t.store.AddMessages(ctx, userID, 1, now); err != nil {
		t.log.Warn("recording message failed", logx.Int64("user", userID), logx.Err(err))
		return
	}
	if t.points != nil {
		t.points.Recalculate(ctx, userID)
	}
}

// VoiceJoin marks the start of a voice stint. A second join without a leave
// keeps the original start time.
func (t *Tracker) VoiceJoin(userID int64) {
	t.mu.Lock()
	if _, ok := t.voice[userID]; !ok {
		t.voice[userID] = t.now()
	}
	t.mu.Unlock()
}

// VoiceLeave ends the stint and credits whole minutes if the stint met the
// minimum length.
func (t *Tracker) VoiceLeave(ctx context.Context, userID int64) {
	t.mu.Lock()
	joined, ok := t.voice[userID]
	delete(t.voice, userID)
	minSession := t.cfg.MinimumVoiceSession
	t.mu.Unlock()
	if !ok {
		return
	}

	now := t.now()
	stint := now.Sub(joined)
	if stint < minSession {
		return
	}
	minutes := int(stint.Minutes())
	if minutes <= 0 {
		return
	}
	if err := t.store.AddVoiceMinutes(ctx, userID, minutes, now); err != nil {
		t.log.Warn("recording voice minutes failed", logx.Int64("user", userID), logx.Err(err))
		return
	}
	if t.points != nil {
		t.points.Recalculate(ctx, userID)
	}
}

// VoiceEndAll closes every open stint, crediting each one. Used when the
// voice chat itself ends and the platform reports no individual leaves.
func (t *Tracker) VoiceEndAll(ctx context.Context) {
	t.mu.Lock()
	ids := make([]int64, 0, len(t.voice))
	for id := range t.voice {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.VoiceLeave(ctx, id)
	}
}

// InVoice reports whether the user has an open voice stint.
func (t *Tracker) InVoice(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.voice[userID]
	return ok
}
