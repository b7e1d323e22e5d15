package duty

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kit "dutybot/internal/transport"
	logx "dutybot/pkg/logx"
)

// ErrAlreadyOnDuty and ErrNotOnDuty are user-visible conflicts, not faults;
// the router answers them ephemerally.
var (
	ErrAlreadyOnDuty = errors.New("already on duty")
	ErrNotOnDuty     = errors.New("not on duty")
)

// Store is the narrow persistence surface the core needs.
type Store interface {
	FindActiveSession(ctx context.Context, userID int64) (*Session, error)
	LastEndedSession(ctx context.Context, userID int64) (*Session, error)
	CreateSession(ctx context.Context, userID int64, mode Mode, start time.Time) (*Session, error)
	// CloseSession flips an active session to its final status and reports
	// whether a row actually changed. Redundant close attempts are not errors.
	CloseSession(ctx context.Context, id string, status Status, cause Cause, end time.Time) (bool, error)
	ActiveSessions(ctx context.Context) ([]Session, error)
	HourlyCounters(ctx context.Context, userID int64) (Counters, error)
}

// Notifier delivers a direct message to a staff member.
type Notifier interface {
	DirectMessage(ctx context.Context, userID int64, text string) error
}

// AuditSink receives structured transition events. Implementations are
// best-effort and must not block.
type AuditSink interface {
	DutyEnter(ctx context.Context, userID int64, mode Mode)
	DutyLeave(ctx context.Context, userID int64, mode Mode, duration time.Duration, reason string, forced bool)
	VerificationSent(ctx context.Context, userID int64, code string)
	VerificationResult(ctx context.Context, userID int64, sessionID string, success bool, reason string)
}

// PresenceSource supplies the platform's coarse presence signal.
type PresenceSource interface {
	Presence(userID int64) kit.Presence
}

// StaffDirectory answers whether a user currently holds the staff capability.
type StaffDirectory interface {
	IsStaff(userID int64) bool
}

// PanelSync is poked after every transition; implementations re-render the
// shared panel best-effort from persisted state.
type PanelSync interface {
	RequestSync()
}

// PointsRecalc recomputes a member's points after rewarded activity.
type PointsRecalc interface {
	Recalculate(ctx context.Context, userID int64)
}

// Decision is the outcome of a CanEnter check.
type Decision struct {
	Allowed bool
	Reason  string
}

type phase int

const (
	phaseAwaitingSchedule phase = iota // invisible: waiting for the next challenge send
	phaseChallengeSent                 // invisible: code out, deadline armed
	phaseMonitoring                    // active: compliance check armed
)

type challenge struct {
	code     string
	attempts int
	sentAt   time.Time
}

// userState is the single owner of one user's ephemeral duty state: at most
// one live timer and at most one pending challenge. It is only touched while
// holding that user's lock.
type userState struct {
	sessionID string
	mode      Mode
	phase     phase

	// gen invalidates outstanding timer callbacks: every re-arm bumps it, and
	// a firing callback that observes a different gen is stale and must not act.
	gen   uint64
	timer Timer

	challenge *challenge
}

func (st *userState) bumpGen() uint64 {
	st.gen++
	return st.gen
}

// Controller owns the session lifecycle: entry checks, entry, termination,
// completion, and startup reconciliation. All mutations of a user's state run
// under that user's lock, held across the store round trips of one logical
// operation, so a deadline timer and a late reply can never both observe a
// live session.
type Controller struct {
	store    Store
	notify   Notifier
	audit    AuditSink
	presence PresenceSource
	staff    StaffDirectory
	panel    PanelSync
	points   PointsRecalc
	clock    Clock
	log      logx.Logger

	baseCtx context.Context // used by timer-driven operations

	cfgMu sync.RWMutex
	cfg   Config

	// mu guards the tables below only; per-user work uses locks[userID].
	mu    sync.Mutex
	users map[int64]*userState
	locks map[int64]*sync.Mutex
}

type ControllerDeps struct {
	Store    Store
	Notifier Notifier
	Audit    AuditSink
	Presence PresenceSource
	Staff    StaffDirectory
	Panel    PanelSync
	Points   PointsRecalc
	Clock    Clock
	Log      logx.Logger
}

func NewController(cfg Config, deps ControllerDeps) *Controller {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &Controller{
		store:    deps.Store,
		notify:   deps.Notifier,
		audit:    deps.Audit,
		presence: deps.Presence,
		staff:    deps.Staff,
		panel:    deps.Panel,
		points:   deps.Points,
		clock:    clock,
		log:      deps.Log,
		baseCtx:  context.Background(),
		cfg:      cfg,
		users:    map[int64]*userState{},
		locks:    map[int64]*sync.Mutex{},
	}
}

// Bind sets the context timer callbacks run under. Call before Reconcile.
func (c *Controller) Bind(ctx context.Context) {
	if ctx != nil {
		c.baseCtx = ctx
	}
}

// SetConfig applies new duty knobs. Already-armed timers keep their old
// delays; the new values take effect on the next (re)arm.
func (c *Controller) SetConfig(cfg Config) {
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgMu.Unlock()
}

func (c *Controller) config() Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

func (c *Controller) lockUser(userID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu := c.locks[userID]
	if mu == nil {
		mu = &sync.Mutex{}
		c.locks[userID] = mu
	}
	return mu
}

func (c *Controller) stateLocked(userID int64) *userState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[userID]
}

func (c *Controller) putState(userID int64, st *userState) {
	c.mu.Lock()
	c.users[userID] = st
	c.mu.Unlock()
}

// clearState cancels the user's timer (if any), discards any pending
// challenge, and drops the state entry. Caller holds the user lock.
func (c *Controller) clearState(userID int64) {
	c.mu.Lock()
	st := c.users[userID]
	delete(c.users, userID)
	c.mu.Unlock()
	if st == nil {
		return
	}
	st.bumpGen()
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.challenge = nil
}

// CanEnter checks presence and the cooldown left by the user's most recently
// ended session. A denied result is a user-visible rejection, not an error.
func (c *Controller) CanEnter(ctx context.Context, userID int64) (Decision, error) {
	if p := c.presence.Presence(userID); !p.Available() {
		return Decision{Reason: fmt.Sprintf("you must be online to go on duty (you are %s)", p)}, nil
	}

	last, err := c.store.LastEndedSession(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if last != nil {
		cd := last.EndCause.Cooldown(last.Mode, c.config())
		if cd > 0 {
			until := last.EndTime.Add(cd)
			if now := c.clock.Now(); now.Before(until) {
				left := int(until.Sub(now).Minutes()) + 1
				return Decision{
					Reason: fmt.Sprintf("you need to wait %d more minutes before going on duty again", left),
				}, nil
			}
		}
	}
	return Decision{Allowed: true}, nil
}

// Enter starts a new session and arms the scheduling matching the mode.
// Returns ErrAlreadyOnDuty if the user already has an active session.
func (c *Controller) Enter(ctx context.Context, userID int64, mode Mode) (*Session, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid duty mode %q", mode)
	}

	mu := c.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := c.store.FindActiveSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyOnDuty
	}

	sess, err := c.store.CreateSession(ctx, userID, mode, c.clock.Now())
	if err != nil {
		return nil, err
	}

	st := &userState{sessionID: sess.ID, mode: mode}
	c.putState(userID, st)
	c.armLocked(userID, st)

	c.audit.DutyEnter(ctx, userID, mode)
	c.panel.RequestSync()
	c.log.Info("duty entered",
		logx.Int64("user", userID), logx.String("mode", string(mode)), logx.String("session", sess.ID))
	return sess, nil
}

// armLocked starts the scheduling matching the session mode. Caller holds the
// user lock.
func (c *Controller) armLocked(userID int64, st *userState) {
	switch st.mode {
	case ModeInvisible:
		c.scheduleNextChallengeLocked(userID, st)
	case ModeActive:
		c.armComplianceLocked(userID, st)
	}
}

// Terminate force-ends the user's active session. It is a no-op when no
// active session exists, so racing triggers (deadline timer vs. presence
// poll) are safe to invoke redundantly.
func (c *Controller) Terminate(ctx context.Context, userID int64, cause Cause, detail string) error {
	mu := c.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()
	_, _, err := c.endLocked(ctx, userID, cause, detail)
	return err
}

// Complete is the user-initiated graceful exit. It returns the session
// duration for the confirmation message, or ErrNotOnDuty.
func (c *Controller) Complete(ctx context.Context, userID int64) (time.Duration, error) {
	mu := c.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()
	d, ended, err := c.endLocked(ctx, userID, CauseUserCompleted, "")
	if err != nil {
		return 0, err
	}
	if !ended {
		return 0, ErrNotOnDuty
	}
	return d, nil
}

// endLocked is the shared exit path. Caller holds the user lock. In-memory
// scheduling is dropped even when the persisted session is already gone, so a
// stale timer can never outlive its session.
func (c *Controller) endLocked(ctx context.Context, userID int64, cause Cause, detail string) (time.Duration, bool, error) {
	c.clearState(userID)

	sess, err := c.store.FindActiveSession(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if sess == nil {
		return 0, false, nil
	}

	now := c.clock.Now()
	changed, err := c.store.CloseSession(ctx, sess.ID, cause.Status(), cause, now)
	if err != nil {
		return 0, false, err
	}
	if !changed {
		return 0, false, nil
	}

	reason := cause.Reason(detail)
	duration := now.Sub(sess.StartTime)

	if cause.Forced() {
		msg := fmt.Sprintf("❌ Your duty session was ended: %s. (duration: %s)", reason, formatDuration(duration))
		if err := c.notify.DirectMessage(ctx, userID, msg); err != nil {
			c.log.Warn("termination DM failed", logx.Int64("user", userID), logx.Err(err))
		}
	}

	c.audit.DutyLeave(ctx, userID, sess.Mode, duration, reason, cause.Forced())
	c.panel.RequestSync()
	c.log.Info("duty ended",
		logx.Int64("user", userID), logx.String("mode", string(sess.Mode)),
		logx.String("cause", string(cause)), logx.Duration("duration", duration))
	return duration, true, nil
}

// Reconcile resumes scheduling for sessions the store reports as active.
// Run once at process start; it never creates sessions.
func (c *Controller) Reconcile(ctx context.Context) error {
	sessions, err := c.store.ActiveSessions(ctx)
	if err != nil {
		return err
	}

	resumed, invalidated := 0, 0
	for _, s := range sessions {
		if !c.staff.IsStaff(s.UserID) {
			if err := c.Terminate(ctx, s.UserID, CauseRestartInvalid, ""); err != nil {
				c.log.Warn("reconcile terminate failed", logx.Int64("user", s.UserID), logx.Err(err))
			}
			invalidated++
			continue
		}

		mu := c.lockUser(s.UserID)
		mu.Lock()
		if c.stateLocked(s.UserID) == nil {
			st := &userState{sessionID: s.ID, mode: s.Mode}
			c.putState(s.UserID, st)
			// Invisible sessions get a fresh challenge schedule; never assume
			// one was in flight before the restart.
			c.armLocked(s.UserID, st)
			resumed++
		}
		mu.Unlock()
	}

	c.log.Info("reconciled active sessions",
		logx.Int("resumed", resumed), logx.Int("invalidated", invalidated))
	return nil
}

// OnDuty reports whether the controller currently schedules the user.
func (c *Controller) OnDuty(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[userID] != nil
}

func formatDuration(d time.Duration) string {
	m := int(d.Minutes())
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", m/60, m%60)
}
