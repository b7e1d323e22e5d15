package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
	UpdateMember   UpdateKind = "member"
	UpdateVoice    UpdateKind = "voice"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
	Member   *MemberChange
	Voice    *VoiceChange
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsDirect     bool // private chat with the bot
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

// MemberChange reports a user entering or leaving the monitored staff chat.
type MemberChange struct {
	UserID   int64
	Username string
	Joined   bool
}

// VoiceChange reports voice-chat activity in the monitored staff chat.
// Ended means the voice chat is over for everyone; otherwise UserIDs
// lists users who entered it. Platforms that cannot report individual
// leaves (Telegram) only ever emit joins and a final Ended.
type VoiceChange struct {
	ChatID  int64
	UserIDs []int64
	Ended   bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Presence is the coarse availability signal the platform supplies.
// The duty core only reacts to transitions; how a platform derives it
// (real presence, activity heuristics) is an adapter concern.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceIdle    Presence = "idle"
	PresenceOffline Presence = "offline"
)

// Available reports whether the presence allows entering or staying on duty.
func (p Presence) Available() bool { return p == PresenceOnline }

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}
