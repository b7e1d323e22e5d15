package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"dutybot/internal/duty"
	kit "dutybot/internal/transport"
	logx "dutybot/pkg/logx"
)

func (a *App) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-a.updates:
			if !ok {
				return
			}
			a.dispatch(ctx, up)
		}
	}
}

func (a *App) dispatch(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			a.handleMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			a.handleCallback(ctx, up.Callback)
		}
	case kit.UpdateMember:
		if up.Member != nil {
			a.handleMember(ctx, up.Member)
		}
	case kit.UpdateVoice:
		if up.Voice != nil {
			a.handleVoice(ctx, up.Voice)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, m *kit.Message) {
	a.names.Learn(m.FromID, m.FromUsername)
	a.presence.Observe(m.FromID, time.Now())

	if !a.staff.IsStaff(m.FromID) {
		return
	}

	cfg := a.cfgMgr.Get()
	if cfg != nil && m.ChatID == cfg.Staff.ChatID {
		a.track.RecordMessage(ctx, m.FromID)
		return
	}

	if m.IsDirect {
		// A pending verification challenge consumes the reply.
		if a.ctrl.HandleReply(ctx, m.FromID, m.Text) {
			return
		}
		if strings.HasPrefix(m.Text, "/endduty") {
			a.onAdminEndDuty(ctx, m)
			return
		}
		if strings.HasPrefix(m.Text, "/start") {
			a.dm(ctx, m.FromID, "Use the duty panel in the staff chat to go on or off duty.")
		}
	}
}

// onAdminEndDuty handles "/endduty <user_id> [note]" from an admin DM.
func (a *App) onAdminEndDuty(ctx context.Context, m *kit.Message) {
	cfg := a.cfgMgr.Get()
	if cfg == nil || !cfg.Staff.IsAdmin(m.FromID) {
		a.dm(ctx, m.FromID, "Only admins can end someone else's duty.")
		return
	}

	fields := strings.Fields(m.Text)
	if len(fields) < 2 {
		a.dm(ctx, m.FromID, "Usage: /endduty <user_id> [note]")
		return
	}
	target, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		a.dm(ctx, m.FromID, "Usage: /endduty <user_id> [note]")
		return
	}
	note := strings.Join(fields[2:], " ")

	if !a.ctrl.OnDuty(target) {
		a.dm(ctx, m.FromID, fmt.Sprintf("User %d is not on duty.", target))
		return
	}
	if err := a.ctrl.Terminate(ctx, target, duty.CauseAdminOverride, note); err != nil {
		a.log.Warn("admin termination failed",
			logx.Int64("admin", m.FromID), logx.Int64("target", target), logx.Err(err))
		a.dm(ctx, m.FromID, "Something went wrong, try again.")
		return
	}
	a.log.Info("duty ended by admin", logx.Int64("admin", m.FromID), logx.Int64("target", target))
	a.dm(ctx, m.FromID, fmt.Sprintf("Ended the duty session of user %d.", target))
}

func (a *App) handleCallback(ctx context.Context, cb *kit.Callback) {
	a.presence.Observe(cb.FromID, time.Now())

	if !a.staff.IsStaff(cb.FromID) {
		a.answer(ctx, cb.ID, "This panel is staff-only.")
		return
	}

	switch cb.Data {
	case "duty|enter":
		a.onEnterRequested(ctx, cb)
	case "duty|mode|active":
		a.onModeChosen(ctx, cb, duty.ModeActive)
	case "duty|mode|invisible":
		a.onModeChosen(ctx, cb, duty.ModeInvisible)
	case "duty|leave":
		a.onLeaveRequested(ctx, cb)
	case "duty|leave|confirm":
		a.onLeaveConfirmed(ctx, cb)
	case "duty|leave|cancel":
		a.answer(ctx, cb.ID, "Cancelled.")
	default:
		a.log.Debug("unknown callback", logx.String("data", cb.Data))
		a.answer(ctx, cb.ID, "")
	}
}

func (a *App) onEnterRequested(ctx context.Context, cb *kit.Callback) {
	dec, err := a.ctrl.CanEnter(ctx, cb.FromID)
	if err != nil {
		a.log.Warn("entry check failed", logx.Int64("user", cb.FromID), logx.Err(err))
		a.answer(ctx, cb.ID, "Something went wrong, try again.")
		return
	}
	if !dec.Allowed {
		a.answer(ctx, cb.ID, dec.Reason)
		return
	}
	if a.ctrl.OnDuty(cb.FromID) {
		a.answer(ctx, cb.ID, "You are already on duty.")
		return
	}

	rm := &tele.ReplyMarkup{}
	active := rm.Data("🟢 Active", "duty", "mode", "active")
	invisible := rm.Data("🔵 Invisible", "duty", "mode", "invisible")
	rm.Inline(rm.Row(active), rm.Row(invisible))

	_, err = a.adapter.SendText(ctx, kit.ChatTarget{ChatID: cb.FromID},
		"Pick your duty mode:\n\n"+
			"🟢 <b>Active</b> holds you to an hourly activity quota.\n"+
			"🔵 <b>Invisible</b> sends you random verification codes to answer.",
		&kit.SendOptions{ParseMode: "HTML", ReplyMarkupAdapter: rm})
	if err != nil {
		a.log.Warn("mode prompt failed", logx.Int64("user", cb.FromID), logx.Err(err))
		a.answer(ctx, cb.ID, "I could not message you. Open a chat with me first.")
		return
	}
	a.answer(ctx, cb.ID, "Check your direct messages.")
}

func (a *App) onModeChosen(ctx context.Context, cb *kit.Callback, mode duty.Mode) {
	// Conditions may have changed since the panel tap; check again.
	dec, err := a.ctrl.CanEnter(ctx, cb.FromID)
	if err == nil && !dec.Allowed {
		a.answer(ctx, cb.ID, dec.Reason)
		return
	}
	if err != nil {
		a.log.Warn("entry check failed", logx.Int64("user", cb.FromID), logx.Err(err))
		a.answer(ctx, cb.ID, "Something went wrong, try again.")
		return
	}

	_, err = a.ctrl.Enter(ctx, cb.FromID, mode)
	if errors.Is(err, duty.ErrAlreadyOnDuty) {
		a.answer(ctx, cb.ID, "You are already on duty.")
		return
	}
	if err != nil {
		a.log.Warn("duty entry failed", logx.Int64("user", cb.FromID), logx.Err(err))
		a.answer(ctx, cb.ID, "Something went wrong, try again.")
		return
	}

	a.answer(ctx, cb.ID, "You are on duty.")
	if mode == duty.ModeInvisible {
		a.dm(ctx, cb.FromID,
			"🔵 You are on <b>invisible</b> duty. I will send you verification codes at random moments; reply with the code before the deadline.")
	} else {
		a.dm(ctx, cb.FromID,
			"🟢 You are on <b>active</b> duty. Keep up the hourly activity quota in the staff chat.")
	}
}

func (a *App) onLeaveRequested(ctx context.Context, cb *kit.Callback) {
	if !a.ctrl.OnDuty(cb.FromID) {
		a.answer(ctx, cb.ID, "You are not on duty.")
		return
	}
	rm := &tele.ReplyMarkup{}
	confirm := rm.Data("✅ Yes, go off duty", "duty", "leave", "confirm")
	cancel := rm.Data("↩️ Stay on duty", "duty", "leave", "cancel")
	rm.Inline(rm.Row(confirm), rm.Row(cancel))

	_, err := a.adapter.SendText(ctx, kit.ChatTarget{ChatID: cb.FromID},
		"End your duty session?", &kit.SendOptions{ReplyMarkupAdapter: rm})
	if err != nil {
		a.log.Warn("leave prompt failed", logx.Int64("user", cb.FromID), logx.Err(err))
		a.answer(ctx, cb.ID, "I could not message you. Open a chat with me first.")
		return
	}
	a.answer(ctx, cb.ID, "Check your direct messages.")
}

func (a *App) onLeaveConfirmed(ctx context.Context, cb *kit.Callback) {
	d, err := a.ctrl.Complete(ctx, cb.FromID)
	if errors.Is(err, duty.ErrNotOnDuty) {
		a.answer(ctx, cb.ID, "You are not on duty.")
		return
	}
	if err != nil {
		a.log.Warn("duty completion failed", logx.Int64("user", cb.FromID), logx.Err(err))
		a.answer(ctx, cb.ID, "Something went wrong, try again.")
		return
	}
	a.answer(ctx, cb.ID, "You are off duty.")
	a.dm(ctx, cb.FromID, fmt.Sprintf("✅ Duty session completed. You were on duty for %s. Thanks!", roundDuration(d)))
}

func (a *App) handleMember(ctx context.Context, mc *kit.MemberChange) {
	a.names.Learn(mc.UserID, mc.Username)
	if !a.staff.IsStaff(mc.UserID) {
		return
	}
	if mc.Joined {
		a.presence.Observe(mc.UserID, time.Now())
		a.watcher.Track(mc.UserID)
	} else {
		a.track.VoiceLeave(ctx, mc.UserID)
		a.watcher.Forget(mc.UserID)
	}
}

// handleVoice credits voice stints from video-chat service messages. Joins
// open a stint per staff member; the chat ending closes all of them.
func (a *App) handleVoice(ctx context.Context, vc *kit.VoiceChange) {
	if vc.Ended {
		a.track.VoiceEndAll(ctx)
		return
	}
	now := time.Now()
	for _, id := range vc.UserIDs {
		a.presence.Observe(id, now)
		if a.staff.IsStaff(id) {
			a.track.VoiceJoin(id)
		}
	}
}

func (a *App) dm(ctx context.Context, userID int64, text string) {
	_, err := a.adapter.SendText(ctx, kit.ChatTarget{ChatID: userID}, text,
		&kit.SendOptions{ParseMode: "HTML"})
	if err != nil {
		a.log.Warn("direct message failed", logx.Int64("user", userID), logx.Err(err))
	}
}

func (a *App) answer(ctx context.Context, callbackID, text string) {
	if err := a.adapter.AnswerCallback(ctx, callbackID, text); err != nil {
		a.log.Debug("callback answer failed", logx.Err(err))
	}
}

func roundDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}
