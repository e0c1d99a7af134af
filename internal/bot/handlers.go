package bot

import (
	"context"
	"strings"

	"animefinder/internal/catalog"
	"animefinder/internal/publish"
	"animefinder/internal/resolver"
	"animefinder/internal/telemetry"
	kit "animefinder/internal/transport"
	logx "animefinder/pkg/logx"
	"animefinder/pkg/tgui"
)

func (b *Bot) adminOnly(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if !req.IsAdmin {
			// non-admins get the command treated as a query
			b.touchUser(ctx, req)
			return b.handleQuery(ctx, req, strings.Join(append([]string{req.Route}, req.Args...), " "))
		}
		return h(ctx, req)
	}
}

func (b *Bot) touchUser(ctx context.Context, req *Request) {
	if err := b.deps.Store.UpsertUser(ctx, req.FromID); err != nil {
		req.Logger.Warn("user upsert failed", logx.Err(err))
	}
}

func (b *Bot) reply(ctx context.Context, req *Request, m tgui.Message) error {
	_, err := m.Send(ctx, b.deps.Adapter, req.Chat)
	return catalog.Transport("send", req.Chat.ChatID, err)
}

func (b *Bot) handleStart(ctx context.Context, req *Request) error {
	b.touchUser(ctx, req)
	if req.IsAdmin {
		return b.reply(ctx, req, adminStartMessage())
	}
	return b.reply(ctx, req, htmlMessage(tmplWelcome))
}

func (b *Bot) handleAddAnime(ctx context.Context, req *Request) error {
	cb := req.Update.Callback
	if !req.IsAdmin {
		return b.deps.Adapter.AnswerCallback(ctx, cb.ID, NotAdminAlert, true)
	}
	b.deps.Publish.Begin(req.FromID)
	_ = b.deps.Adapter.AnswerCallback(ctx, cb.ID, "", false)
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := htmlMessage(tmplPromptName).Edit(ctx, b.deps.Adapter, ref); err != nil {
		// the original message may be too old to edit
		req.Logger.Debug("edit failed; sending prompt", logx.Err(err))
		return b.reply(ctx, req, htmlMessage(tmplPromptName))
	}
	return nil
}

func (b *Bot) handleCancel(ctx context.Context, req *Request) error {
	if b.deps.Publish.Cancel(req.FromID) {
		return b.reply(ctx, req, htmlMessage(tmplCancelled))
	}
	return b.reply(ctx, req, htmlMessage(tmplNothingActive))
}

func (b *Bot) handleDiscard(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return b.reply(ctx, req, htmlMessage(tmplDiscardUsage))
	}
	token, ok := publish.ExtractToken(publish.Delimited(strings.ToUpper(strings.Trim(req.Args[0], "|`"))))
	if !ok {
		return b.reply(ctx, req, htmlMessage(tmplDiscardUsage))
	}
	removed, err := b.deps.Publish.Discard(ctx, token)
	if err != nil {
		_ = b.reply(ctx, req, htmlMessage(tmplGenericError))
		return err
	}
	if !removed {
		return b.reply(ctx, req, htmlMessage(tgui.Fill(tmplNotPending, "token", token)))
	}
	return b.reply(ctx, req, htmlMessage(tgui.Fill(tmplDiscarded, "token", token)))
}

func (b *Bot) handleStats(ctx context.Context, req *Request) error {
	st, err := b.deps.Store.Stats(ctx)
	if err != nil {
		_ = b.reply(ctx, req, htmlMessage(tmplGenericError))
		return err
	}
	telemetry.SetCatalogStats(st)
	var sent, failed uint64
	if b.deps.Broadcast != nil {
		t := b.deps.Broadcast.Totals()
		sent, failed = t.Sent, t.Failed
	}
	var inFlight int64
	if b.deps.Deleter != nil {
		inFlight = b.deps.Deleter.Counters().InFlight
	}
	return b.reply(ctx, req, statsMessage(st, sent, failed, inFlight))
}

// handleText feeds the admin's add-flow, or resolves the text as a query.
func (b *Bot) handleText(ctx context.Context, req *Request) error {
	b.touchUser(ctx, req)
	text := req.Args[0]
	if !req.IsAdmin {
		return b.handleQuery(ctx, req, text)
	}

	step := b.deps.Publish.HandleText(ctx, req.FromID, text)
	switch step.Kind {
	case publish.StepNameRejected:
		return b.reply(ctx, req, htmlMessage(tmplNameRequired))
	case publish.StepNameAccepted:
		return b.reply(ctx, req, htmlMessage(tmplPromptLink))
	case publish.StepCreated:
		return b.reply(ctx, req, finalInstruction(step.Token))
	case publish.StepFailed:
		_ = b.reply(ctx, req, htmlMessage(tgui.Fill(tmplFail, "token", step.Token)))
		return step.Err
	}
	return b.handleQuery(ctx, req, text)
}

func (b *Bot) handleQuery(ctx context.Context, req *Request, query string) error {
	res, err := b.deps.Resolver.Resolve(ctx, query)
	if err != nil {
		telemetry.Queries.WithLabelValues("error").Inc()
		_ = b.reply(ctx, req, htmlMessage(tmplGenericError))
		return err
	}
	telemetry.Queries.WithLabelValues(res.Kind.String()).Inc()

	switch res.Kind {
	case resolver.CatalogEmpty:
		return b.reply(ctx, req, htmlMessage(tmplCatalogEmpty))
	case resolver.NoMatch:
		return b.reply(ctx, req, htmlMessage(tgui.Fill(tmplNotFound, "query", tgui.TruncRunes(strings.TrimSpace(query), maxQueryEcho))))
	}

	rec := res.Anime
	kb := tgui.NewInline().Row(tgui.URLBtn(btnOpenLink, rec.ViewLink))
	ref, err := b.deps.Adapter.CopyMessage(ctx, req.Chat,
		kit.MessageRef{ChatID: b.cfg.ChannelID, MessageID: rec.ChannelPostID},
		&kit.CopyOptions{Keyboard: kb.Rows()},
	)
	if err != nil {
		_ = b.reply(ctx, req, htmlMessage(tmplGenericError))
		return catalog.Transport("copy", req.Chat.ChatID, err)
	}
	req.Logger.Info("anime delivered",
		logx.String("name", rec.Name),
		logx.Bool("via_oracle", res.ViaOracle),
		logx.Bool("learned", res.Learned),
	)
	if b.deps.Deleter != nil {
		if err := b.deps.Deleter.ScheduleDeletion(ref.ChatID, ref.MessageID, 0); err != nil {
			req.Logger.Warn("deletion not scheduled", logx.Int("msg_id", ref.MessageID), logx.Err(err))
		}
	}
	return nil
}

func (b *Bot) handleChannelPost(ctx context.Context, req *Request) error {
	m := req.Update.Message
	c := b.deps.Publish.Correlate(ctx, m.ID, m.Body())
	admin := kit.ChatTarget{ChatID: b.cfg.AdminID}

	switch c.Kind {
	case publish.Published:
		_, err := htmlMessage(tgui.Fill(tmplSuccess, "name", c.Record.Name)).Send(ctx, b.deps.Adapter, admin)
		return catalog.Transport("send", admin.ChatID, err)
	case publish.Unmatched:
		_, err := htmlMessage(tgui.Fill(tmplFail, "token", c.Token)).Send(ctx, b.deps.Adapter, admin)
		if c.Err != nil {
			req.Logger.Warn("correlation failed", logx.String("token", c.Token), logx.Err(c.Err))
		}
		return catalog.Transport("send", admin.ChatID, err)
	}
	return nil
}
