// Package bot routes Telegram updates to the catalog, resolver and publish
// flows.
package bot

import (
	"context"
	"encoding/binary"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"animefinder/internal/broadcast"
	"animefinder/internal/catalog"
	"animefinder/internal/delivery"
	"animefinder/internal/publish"
	"animefinder/internal/resolver"
	rtsup "animefinder/internal/runtime/supervisor"
	kit "animefinder/internal/transport"
	logx "animefinder/pkg/logx"
)

// Store is the slice of the record store the bot touches directly.
type Store interface {
	UpsertUser(ctx context.Context, id int64) error
	Stats(ctx context.Context) (catalog.Stats, error)
}

type Resolver interface {
	Resolve(ctx context.Context, query string) (resolver.Result, error)
}

type Publisher interface {
	Begin(adminID int64)
	Cancel(adminID int64) bool
	State(adminID int64) publish.State
	HandleText(ctx context.Context, adminID int64, text string) publish.Step
	Correlate(ctx context.Context, channelPostID int, body string) publish.Correlation
	Discard(ctx context.Context, token string) (bool, error)
}

type Deleter interface {
	ScheduleDeletion(chatID int64, msgID int, delay time.Duration) error
	Counters() delivery.Counters
}

type BroadcastTotals interface {
	Totals() broadcast.Totals
}

type Config struct {
	AdminID   int64
	ChannelID int64
	// Workers is the number of ordered lanes; a chat always maps to one lane.
	Workers        int
	LaneQueue      int
	HandlerTimeout time.Duration
}

type Deps struct {
	Adapter   kit.Adapter
	Store     Store
	Resolver  Resolver
	Publish   Publisher
	Deleter   Deleter
	Broadcast BroadcastTotals
}

type Bot struct {
	cfg  Config
	deps Deps
	log  logx.Logger

	mu    sync.Mutex
	lanes []chan func(context.Context)
}

func New(cfg Config, deps Deps, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.LaneQueue <= 0 {
		cfg.LaneQueue = 64
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	return &Bot{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "bot"))}
}

// Run dispatches updates until ctx is done or updates is closed. Updates of
// one chat are handled in arrival order; different chats run concurrently.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(b.log.With(logx.String("comp", "bot.router"))),
		rtsup.WithCancelOnError(false),
	)
	lanes := make([]chan func(context.Context), b.cfg.Workers)
	for i := range lanes {
		lane := make(chan func(context.Context), b.cfg.LaneQueue)
		lanes[i] = lane
		sup.GoRestart("lane."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-lane:
					if !ok {
						return nil
					}
					job(c)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
		)
	}
	b.mu.Lock()
	b.lanes = lanes
	b.mu.Unlock()
	b.log.Info("dispatcher started", logx.Int("lanes", len(lanes)), logx.Int("lane_queue", b.cfg.LaneQueue))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		b.mu.Lock()
		b.lanes = nil
		b.mu.Unlock()
		b.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, up)
		}
	}
}

// Handle runs one update synchronously through the middleware chain.
func (b *Bot) Handle(ctx context.Context, up kit.Update) error {
	h, req := b.route(up)
	if h == nil {
		return nil
	}
	return b.chain(h)(ctx, req)
}

func (b *Bot) dispatch(ctx context.Context, up kit.Update) {
	h, req := b.route(up)
	if h == nil {
		return
	}
	final := b.chain(h)
	job := func(c context.Context) { _ = final(c, req) }

	b.mu.Lock()
	lanes := b.lanes
	b.mu.Unlock()
	if len(lanes) == 0 {
		return
	}
	lane := lanes[laneFor(req.Chat.ChatID, len(lanes))]
	select {
	case lane <- job:
	default:
		req.Logger.Warn("lane full; update dropped", logx.String("route", req.Route))
		if up.Kind == kit.UpdateCallback && up.Callback != nil {
			_ = b.deps.Adapter.AnswerCallback(ctx, up.Callback.ID, tmplBusy.String(), false)
		} else if up.Kind == kit.UpdateMessage && req.Chat.ChatID != b.cfg.ChannelID {
			_, _ = htmlMessage(tmplBusy).Send(ctx, b.deps.Adapter, req.Chat)
		}
	}
}

func (b *Bot) chain(h HandlerFunc) HandlerFunc {
	return Chain(h,
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(b.cfg.HandlerTimeout),
	)
}

func laneFor(chatID int64, n int) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(chatID))
	return int(xxhash.Sum64(buf[:]) % uint64(n))
}

// route picks the handler for up. A nil handler means the update is ignored.
func (b *Bot) route(up kit.Update) (HandlerFunc, *Request) {
	req := &Request{Update: up, ReqID: uuid.NewString()}

	switch up.Kind {
	case kit.UpdateChannelPost:
		m := up.Message
		if m == nil || m.ChatID != b.cfg.ChannelID {
			return nil, nil
		}
		req.Chat = kit.ChatTarget{ChatID: m.ChatID}
		req.Route = "channel_post"
		req.Logger = b.reqLogger(req)
		return b.handleChannelPost, req

	case kit.UpdateCallback:
		cb := up.Callback
		if cb == nil {
			return nil, nil
		}
		data := strings.TrimSpace(cb.Data)
		if data != CallbackAddAnime {
			return nil, nil
		}
		req.Chat = kit.ChatTarget{ChatID: cb.ChatID}
		req.FromID = cb.FromID
		req.IsAdmin = cb.FromID == b.cfg.AdminID
		req.Route = "cb:" + data
		req.Logger = b.reqLogger(req)
		return b.handleAddAnime, req

	case kit.UpdateMessage:
		m := up.Message
		if m == nil || !m.IsPrivate {
			return nil, nil
		}
		req.Chat = kit.ChatTarget{ChatID: m.ChatID}
		req.FromID = m.FromID
		req.IsAdmin = m.FromID == b.cfg.AdminID
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return nil, nil
		}

		if cmd, args, ok := parseCommand(text); ok {
			req.Route = "/" + cmd
			req.Args = args
			req.Logger = b.reqLogger(req)
			switch cmd {
			case "start":
				return b.handleStart, req
			case "cancel":
				return b.adminOnly(b.handleCancel), req
			case "discard":
				return b.adminOnly(b.handleDiscard), req
			case "stats":
				return b.adminOnly(b.handleStats), req
			}
			// unknown commands are ordinary text
		}
		req.Route = "text"
		req.Args = []string{text}
		req.Logger = b.reqLogger(req)
		return b.handleText, req
	}
	return nil, nil
}

func (b *Bot) reqLogger(req *Request) logx.Logger {
	return b.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
		logx.String("route", req.Route),
	)
}

// parseCommand splits "/cmd@bot a b" into ("cmd", [a b]).
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}
