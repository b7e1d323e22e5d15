// Package presence derives a coarse availability signal from observed
// Telegram activity. The platform exposes no real presence API, so a member
// counts as online while they have produced an update recently, decaying to
// idle and then offline as their last activity ages.
package presence

import (
	"sync"
	"time"

	kit "dutybot/internal/transport"
	logx "dutybot/pkg/logx"
)

type Tracker struct {
	log logx.Logger

	mu           sync.RWMutex
	idleAfter    time.Duration
	offlineAfter time.Duration
	lastSeen     map[int64]time.Time

	now func() time.Time
}

func NewTracker(idleAfter, offlineAfter time.Duration, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Tracker{
		log:      log,
		lastSeen: map[int64]time.Time{},
		now:      time.Now,
	}
	t.SetThresholds(idleAfter, offlineAfter)
	return t
}

// SetThresholds applies new decay windows; used on config reload.
func (t *Tracker) SetThresholds(idleAfter, offlineAfter time.Duration) {
	if idleAfter <= 0 {
		idleAfter = 10 * time.Minute
	}
	if offlineAfter <= idleAfter {
		offlineAfter = idleAfter * 3
	}
	t.mu.Lock()
	t.idleAfter = idleAfter
	t.offlineAfter = offlineAfter
	t.mu.Unlock()
}

// Observe records activity from the user. Called for every update the user
// produces (messages, callbacks, member changes).
func (t *Tracker) Observe(userID int64, at time.Time) {
	if at.IsZero() {
		at = t.now()
	}
	t.mu.Lock()
	if at.After(t.lastSeen[userID]) {
		t.lastSeen[userID] = at
	}
	t.mu.Unlock()
}

// Forget drops the user's record, e.g. when they leave the staff chat.
func (t *Tracker) Forget(userID int64) {
	t.mu.Lock()
	delete(t.lastSeen, userID)
	t.mu.Unlock()
}

// Presence classifies the user by the age of their last observed activity.
// A user never seen at all is offline.
func (t *Tracker) Presence(userID int64) kit.Presence {
	t.mu.RLock()
	seen, ok := t.lastSeen[userID]
	idle, offline := t.idleAfter, t.offlineAfter
	t.mu.RUnlock()
	if !ok {
		return kit.PresenceOffline
	}
	age := t.now().Sub(seen)
	switch {
	case age >= offline:
		return kit.PresenceOffline
	case age >= idle:
		return kit.PresenceIdle
	default:
		return kit.PresenceOnline
	}
}

// Prune drops records older than the offline window times four; bounds memory
// on long-lived processes. Safe to call from a cron job.
func (t *Tracker) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-4 * t.offlineAfter)
	removed := 0
	for id, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			delete(t.lastSeen, id)
			removed++
		}
	}
	if removed > 0 {
		t.log.Debug("pruned presence records", logx.Int("removed", removed))
	}
}
