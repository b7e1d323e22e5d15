package duty

// Invisible-mode verification: randomized challenge scheduling, code
// validation with a single retry, and the response deadline.

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"strings"
	"time"
	"unicode"

	logx "dutybot/pkg/logx"
)

const codeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// scheduleNextChallengeLocked arms the next challenge-send timer with a
// uniform random delay in [MinInterval, MaxInterval]. Caller holds the user
// lock. A pending challenge keeps ownership of the single timer slot, so
// scheduling while one is out is a no-op.
func (c *Controller) scheduleNextChallengeLocked(userID int64, st *userState) {
	if st.challenge != nil {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}

	cfg := c.config()
	delay := randomDelay(cfg.MinInterval, cfg.MaxInterval)
	st.phase = phaseAwaitingSchedule
	gen := st.bumpGen()
	st.timer = c.clock.AfterFunc(delay, func() { c.onChallengeDue(userID, gen) })

	c.log.Debug("challenge scheduled",
		logx.Int64("user", userID), logx.Duration("delay", delay))
}

func (c *Controller) onChallengeDue(userID int64, gen uint64) {
	mu := c.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	st := c.stateLocked(userID)
	if st == nil || st.gen != gen {
		return // state moved on since this timer was armed
	}
	c.sendChallengeLocked(c.baseCtx, userID, st)
}

// sendChallengeLocked emits a fresh code and arms the response deadline.
// Caller holds the user lock.
func (c *Controller) sendChallengeLocked(ctx context.Context, userID int64, st *userState) {
	if st.challenge != nil {
		return // double-arming guard
	}

	code, err := generateCode(codeLength)
	if err != nil {
		c.log.Error("challenge code generation failed", logx.Err(err))
		c.scheduleNextChallengeLocked(userID, st)
		return
	}

	cfg := c.config()
	st.challenge = &challenge{code: code, sentAt: c.clock.Now()}
	st.phase = phaseChallengeSent
	if st.timer != nil {
		st.timer.Stop()
	}
	gen := st.bumpGen()
	st.timer = c.clock.AfterFunc(cfg.ResponseTime, func() { c.onChallengeDeadline(userID, gen) })

	msg := fmt.Sprintf(
		"🔍 Duty check! Reply with this code within %d minutes:\n%s",
		int(cfg.ResponseTime.Minutes()), code)
	if err := c.notify.DirectMessage(ctx, userID, msg); err != nil {
		// The member never saw the code; failing them on it would be unfair.
		// Drop the challenge and try again on a fresh schedule.
		c.log.Warn("challenge DM failed; rescheduling", logx.Int64("user", userID), logx.Err(err))
		st.challenge = nil
		c.scheduleNextChallengeLocked(userID, st)
		return
	}

	c.audit.VerificationSent(ctx, userID, code)
	c.log.Info("challenge sent", logx.Int64("user", userID))
}

func (c *Controller) onChallengeDeadline(userID int64, gen uint64) {
	mu := c.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	st := c.stateLocked(userID)
	if st == nil || st.gen != gen || st.challenge == nil {
		return
	}

	ctx := c.baseCtx
	c.audit.VerificationResult(ctx, userID, st.sessionID, false, "no response")
	if _, _, err := c.endLocked(ctx, userID, CauseNoResponse, ""); err != nil {
		c.log.Error("deadline termination failed", logx.Int64("user", userID), logx.Err(err))
	}
}

// HandleReply validates a direct reply against the user's pending challenge.
// It reports false when the user has no challenge outstanding, so the router
// can ignore unrelated DMs.
func (c *Controller) HandleReply(ctx context.Context, userID int64, text string) bool {
	mu := c.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	st := c.stateLocked(userID)
	if st == nil || st.challenge == nil {
		return false
	}
	ch := st.challenge

	if normalizeCode(text) == normalizeCode(ch.code) {
		st.challenge = nil
		c.audit.VerificationResult(ctx, userID, st.sessionID, true, "")
		if err := c.notify.DirectMessage(ctx, userID, "✅ Verification passed. Carry on!"); err != nil {
			c.log.Warn("verification confirm DM failed", logx.Int64("user", userID), logx.Err(err))
		}
		c.scheduleNextChallengeLocked(userID, st)
		if c.points != nil {
			c.points.Recalculate(ctx, userID)
		}
		c.log.Info("verification passed", logx.Int64("user", userID), logx.Int("attempt", ch.attempts+1))
		return true
	}

	if ch.attempts == 0 {
		// One retry: same code, deadline untouched.
		ch.attempts++
		if err := c.notify.DirectMessage(ctx, userID,
			"❌ Wrong code. You have one more attempt with the same code; another miss ends your session."); err != nil {
			c.log.Warn("retry warning DM failed", logx.Int64("user", userID), logx.Err(err))
		}
		c.log.Info("verification retry", logx.Int64("user", userID))
		return true
	}

	c.audit.VerificationResult(ctx, userID, st.sessionID, false, "wrong code")
	if _, _, err := c.endLocked(ctx, userID, CauseWrongCode, ""); err != nil {
		c.log.Error("wrong-code termination failed", logx.Int64("user", userID), logx.Err(err))
	}
	if c.points != nil {
		c.points.Recalculate(ctx, userID)
	}
	return true
}

func generateCode(n int) (string, error) {
	b := make([]byte, n)
	maxIdx := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		v, err := rand.Int(rand.Reader, maxIdx)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[v.Int64()]
	}
	return string(b), nil
}

// randomDelay draws a uniform delay in [min, max]. The spread uses math/rand;
// only the challenge codes themselves need crypto randomness.
func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(mrand.Int63n(int64(max-min)+1))
}

// normalizeCode compares replies case- and whitespace-insensitively.
func normalizeCode(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}
