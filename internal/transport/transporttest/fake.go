// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	kit "animefinder/internal/transport"
)

var ErrBlocked = errors.New("forbidden: bot was blocked by the user")

type Sent struct {
	To   int64
	Text string
	Opt  kit.SendOptions
}

type Copied struct {
	To   int64
	From kit.MessageRef
	Opt  kit.CopyOptions
	Ref  kit.MessageRef
}

type Answer struct {
	ID    string
	Text  string
	Alert bool
}

type Edit struct {
	Ref  kit.MessageRef
	Text string
}

// Adapter records every outbound call. Chats listed in Fail return ErrBlocked.
type Adapter struct {
	mu sync.Mutex

	nextID int

	Sent     []Sent
	Copies   []Copied
	Deleted  []kit.MessageRef
	Edits    []Edit
	Captions []Edit
	Answers  []Answer

	Fail       map[int64]bool
	FailDelete bool
}

func New() *Adapter {
	return &Adapter{nextID: 1000, Fail: map[int64]bool{}}
}

func (a *Adapter) FailChat(chatID int64) {
	a.mu.Lock()
	a.Fail[chatID] = true
	a.mu.Unlock()
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *Adapter) Stop(ctx context.Context) error                         { return nil }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Fail[to.ChatID] {
		return kit.MessageRef{}, ErrBlocked
	}
	s := Sent{To: to.ChatID, Text: text}
	if opt != nil {
		s.Opt = *opt
	}
	a.Sent = append(a.Sent, s)
	a.nextID++
	return kit.MessageRef{ChatID: to.ChatID, MessageID: a.nextID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Edits = append(a.Edits, Edit{Ref: ref, Text: text})
	return nil
}

func (a *Adapter) EditCaption(ctx context.Context, ref kit.MessageRef, caption string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Captions = append(a.Captions, Edit{Ref: ref, Text: caption})
	return nil
}

func (a *Adapter) CopyMessage(ctx context.Context, to kit.ChatTarget, from kit.MessageRef, opt *kit.CopyOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Fail[to.ChatID] {
		return kit.MessageRef{}, ErrBlocked
	}
	a.nextID++
	c := Copied{To: to.ChatID, From: from, Ref: kit.MessageRef{ChatID: to.ChatID, MessageID: a.nextID}}
	if opt != nil {
		c.Opt = *opt
	}
	a.Copies = append(a.Copies, c)
	return c.Ref, nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailDelete {
		return errors.New("message to delete not found")
	}
	a.Deleted = append(a.Deleted, ref)
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Answers = append(a.Answers, Answer{ID: callbackID, Text: text, Alert: alert})
	return nil
}

// Snapshot helpers copy under lock so tests can poll while workers run.

func (a *Adapter) SentTo(chatID int64) []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Sent
	for _, s := range a.Sent {
		if s.To == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (a *Adapter) CopiesSnapshot() []Copied {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Copied(nil), a.Copies...)
}

func (a *Adapter) DeletedSnapshot() []kit.MessageRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kit.MessageRef(nil), a.Deleted...)
}

func (a *Adapter) AnswersSnapshot() []Answer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Answer(nil), a.Answers...)
}

func (a *Adapter) EditsSnapshot() []Edit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Edit(nil), a.Edits...)
}
