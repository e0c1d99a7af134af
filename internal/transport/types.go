package transport

import "context"

type UpdateKind string

const (
	UpdateMessage     UpdateKind = "message"
	UpdateCallback    UpdateKind = "callback"
	UpdateChannelPost UpdateKind = "channel_post"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is an inbound private/group message or a channel post.
// For channel posts FromID is zero and Caption carries media captions.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	Caption      string
	IsPrivate    bool
}

// Body returns the text, or the caption for media posts.
func (m *Message) Body() string {
	if m == nil {
		return ""
	}
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is an inline keyboard button. Exactly one of URL and Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Keyboard rows rendered as an inline keyboard.
	Keyboard [][]Button
}

// CopyOptions controls copyMessage. An empty Caption keeps the original.
type CopyOptions struct {
	Caption   string
	ParseMode string
	Keyboard  [][]Button
}

// Adapter is the chat transport.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	EditCaption(ctx context.Context, ref MessageRef, caption string, opt *SendOptions) error
	CopyMessage(ctx context.Context, to ChatTarget, from MessageRef, opt *CopyOptions) (MessageRef, error)
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}
