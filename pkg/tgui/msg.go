package tgui

import (
	"context"
	"strings"

	kit "animefinder/internal/transport"
)

// Message is rendered text plus its send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

func (m Message) opt() *kit.SendOptions {
	if m.Opt == nil {
		return &kit.SendOptions{}
	}
	return m.Opt
}

func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	return ad.SendText(ctx, to, m.Text, m.opt())
}

// Edit replaces the text of ref in place.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	return ad.EditText(ctx, ref, m.Text, m.opt())
}

// Builder assembles an HTML message line by line. Link previews are off.
type Builder struct {
	kb    *Inline
	lines []H
}

func New() *Builder { return &Builder{} }

func (b *Builder) Inline(kb *Inline) *Builder {
	b.kb = kb
	return b
}

// Title adds a bold heading, prefixed by emoji when given.
func (b *Builder) Title(emoji, title string) *Builder {
	title = strings.TrimSpace(title)
	if title == "" {
		return b
	}
	h := B(title)
	if emoji = strings.TrimSpace(emoji); emoji != "" {
		h = Esc(emoji) + " " + h
	}
	return b.HTML(h)
}

func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h)
	return b
}

func (b *Builder) Blank() *Builder { return b.HTML("") }

// KV adds a bullet row "• <b>key</b>: value". Empty keys are skipped.
func (b *Builder) KV(key, value string) *Builder {
	if key = strings.TrimSpace(key); key == "" {
		return b
	}
	return b.HTML("• " + B(key) + ": " + Esc(strings.TrimSpace(value)))
}

func (b *Builder) Build() Message {
	parts := make([]string, len(b.lines))
	for i, l := range b.lines {
		parts[i] = string(l)
	}
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if rows := b.kb.Rows(); len(rows) > 0 {
		opt.Keyboard = rows
	}
	return Message{Text: strings.Trim(strings.Join(parts, "\n"), "\n"), Opt: opt}
}
