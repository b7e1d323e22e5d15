package duty

import (
	"context"
	"sync"

	kit "dutybot/internal/transport"
	logx "dutybot/pkg/logx"
)

// PresenceWatcher keeps the last observed presence of every monitored staff
// member and force-ends sessions on a transition into idle/offline. The
// monitored set follows staff grants/revokes, independent of duty state.
// Detection latency is bounded by the poll interval.
type PresenceWatcher struct {
	ctrl *Controller
	src  PresenceSource
	log  logx.Logger

	mu   sync.Mutex
	last map[int64]kit.Presence
}

func NewPresenceWatcher(ctrl *Controller, src PresenceSource, log logx.Logger) *PresenceWatcher {
	return &PresenceWatcher{
		ctrl: ctrl,
		src:  src,
		log:  log,
		last: map[int64]kit.Presence{},
	}
}

// Track adds a member with their current presence. Used on staff grant and
// at process start.
func (w *PresenceWatcher) Track(userID int64) {
	p := w.src.Presence(userID)
	w.mu.Lock()
	w.last[userID] = p
	w.mu.Unlock()
	w.log.Debug("presence tracked", logx.Int64("user", userID), logx.String("presence", string(p)))
}

// Forget removes a member on staff revoke.
func (w *PresenceWatcher) Forget(userID int64) {
	w.mu.Lock()
	delete(w.last, userID)
	w.mu.Unlock()
}

// Tracked reports whether the member is in the monitored set.
func (w *PresenceWatcher) Tracked(userID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.last[userID]
	return ok
}

// Poll runs one sweep over the monitored set. Invoked on a fixed cadence by
// the app's job runner.
func (w *PresenceWatcher) Poll(ctx context.Context) {
	w.mu.Lock()
	ids := make([]int64, 0, len(w.last))
	for id := range w.last {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		cur := w.src.Presence(id)

		w.mu.Lock()
		prev, tracked := w.last[id]
		if tracked {
			w.last[id] = cur
		}
		w.mu.Unlock()
		if !tracked || cur == prev {
			continue
		}

		w.log.Debug("presence transition",
			logx.Int64("user", id), logx.String("from", string(prev)), logx.String("to", string(cur)))

		if !cur.Available() {
			// Terminate no-ops when the member has no live session.
			if err := w.ctrl.Terminate(ctx, id, CausePresenceLost, string(cur)); err != nil {
				w.log.Warn("presence termination failed", logx.Int64("user", id), logx.Err(err))
			}
		}
	}
}
