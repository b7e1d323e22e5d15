package duty

// Active-mode compliance: an hourly per-session check of the rolling message
// and voice-minute counters, anchored to entry time. The counters themselves
// are reset by an independent fixed-cadence sweep (see app cron jobs).

import (
	"fmt"
	"strings"

	logx "dutybot/pkg/logx"
)

// armComplianceLocked arms the next compliance check. Caller holds the user
// lock. The recurring interval is realized as a re-armed one-shot so the user
// keeps exactly one live timer handle.
func (c *Controller) armComplianceLocked(userID int64, st *userState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.phase = phaseMonitoring
	gen := st.bumpGen()
	st.timer = c.clock.AfterFunc(c.config().complianceInterval(), func() { c.onComplianceDue(userID, gen) })
}

func (c *Controller) onComplianceDue(userID int64, gen uint64) {
	mu := c.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	st := c.stateLocked(userID)
	if st == nil || st.gen != gen {
		return
	}

	ctx := c.baseCtx
	counters, err := c.store.HourlyCounters(ctx, userID)
	if err != nil {
		// Don't punish the member for a store hiccup; check again next hour.
		c.log.Warn("compliance counter read failed", logx.Int64("user", userID), logx.Err(err))
		c.armComplianceLocked(userID, st)
		return
	}

	cfg := c.config()
	ok, detail := evaluateQuota(counters, cfg)
	if ok {
		c.log.Debug("activity quota met",
			logx.Int64("user", userID),
			logx.Int("messages", counters.MessagesHour),
			logx.Int("voice_minutes", counters.VoiceMinutesHour))
		c.armComplianceLocked(userID, st)
		return
	}

	if _, _, err := c.endLocked(ctx, userID, CauseQuotaFailed, detail); err != nil {
		c.log.Error("quota termination failed", logx.Int64("user", userID), logx.Err(err))
	}
}

// evaluateQuota checks the hourly counters against the configured policy.
// When unmet, detail names exactly the failed sub-requirements with their
// observed and required values.
func evaluateQuota(counters Counters, cfg Config) (ok bool, detail string) {
	meetsMessages := counters.MessagesHour >= cfg.MessagesPerHour
	meetsVoice := counters.VoiceMinutesHour >= cfg.VoiceMinutesPerHour

	if cfg.RequireBoth {
		ok = meetsMessages && meetsVoice
	} else {
		ok = meetsMessages || meetsVoice
	}
	if ok {
		return true, ""
	}

	var missed []string
	if !meetsMessages {
		missed = append(missed, fmt.Sprintf("messages (%d/%d)", counters.MessagesHour, cfg.MessagesPerHour))
	}
	if !meetsVoice {
		missed = append(missed, fmt.Sprintf("voice minutes (%d/%d)", counters.VoiceMinutesHour, cfg.VoiceMinutesPerHour))
	}
	return false, strings.Join(missed, " and ")
}
