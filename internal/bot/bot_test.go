package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"animefinder/internal/broadcast"
	"animefinder/internal/catalog"
	"animefinder/internal/delivery"
	"animefinder/internal/eventbus"
	"animefinder/internal/oracle"
	"animefinder/internal/publish"
	"animefinder/internal/resolver"
	"animefinder/internal/storage"
	kit "animefinder/internal/transport"
	"animefinder/internal/transport/transporttest"
	logx "animefinder/pkg/logx"
)

const (
	adminID   = int64(1)
	channelID = int64(-1001)
)

type harness struct {
	bot   *Bot
	ad    *transporttest.Adapter
	store storage.Store
	bc    *broadcast.Service
	del   *delivery.Scheduler
}

func newHarness(t *testing.T, ad kit.Adapter, o oracle.Oracle) *harness {
	t.Helper()
	ctx := context.Background()
	st, err := storage.Open(ctx, storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	bc := broadcast.New(broadcast.Config{}, broadcast.Options{
		Adapter: ad, Recipients: st, Bus: bus, ChannelID: channelID, Caption: BroadcastCaption,
	}, logx.Nop())
	bc.Start(ctx)
	t.Cleanup(func() { bc.Stop(context.Background()) })

	del := delivery.New(delivery.Config{DeleteAfter: 50 * time.Millisecond}, ad, bus, logx.Nop())
	del.Start(ctx)
	t.Cleanup(func() { del.Stop(context.Background()) })

	if o == nil {
		o = oracle.Func(func(context.Context, string, []string) (string, error) { return oracle.NoneAnswer, nil })
	}
	res := resolver.New(st, o, resolver.Config{}, logx.Nop())
	coord := publish.NewCoordinator(st, publish.NewSessions(time.Minute), bc, bus, logx.Nop())

	b := New(Config{AdminID: adminID, ChannelID: channelID}, Deps{
		Adapter: ad, Store: st, Resolver: res, Publish: coord, Deleter: del, Broadcast: bc,
	}, logx.Nop())
	h := &harness{bot: b, store: st, bc: bc, del: del}
	if fake, ok := ad.(*transporttest.Adapter); ok {
		h.ad = fake
	}
	return h
}

func privateText(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: from, FromID: from, Text: text, IsPrivate: true,
	}}
}

func channelPost(chatID int64, id int, caption string) kit.Update {
	return kit.Update{Kind: kit.UpdateChannelPost, Message: &kit.Message{ID: id, ChatID: chatID, Caption: caption}}
}

func callback(from int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb1", FromID: from, ChatID: from, MessageID: 55, Data: data,
	}}
}

func (h *harness) handle(t *testing.T, up kit.Update) error {
	t.Helper()
	return h.bot.Handle(context.Background(), up)
}

func lastSent(t *testing.T, ad *transporttest.Adapter, chat int64) transporttest.Sent {
	t.Helper()
	sent := ad.SentTo(chat)
	if len(sent) == 0 {
		t.Fatalf("nothing sent to %d", chat)
	}
	return sent[len(sent)-1]
}

func seedPublished(t *testing.T, st storage.Store, name, link, token string, postID int) {
	t.Helper()
	ctx := context.Background()
	id, err := st.CreatePending(ctx, name, link, token)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Finalize(ctx, id, postID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
}

func waitFor(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", within)
}

func TestStartGreetsAdminAndUsers(t *testing.T) {
	h := newHarness(t, transporttest.New(), nil)

	if err := h.handle(t, privateText(adminID, "/start")); err != nil {
		t.Fatal(err)
	}
	s := lastSent(t, h.ad, adminID)
	if !strings.Contains(s.Text, "Hello Admin!") || len(s.Opt.Keyboard) != 1 || s.Opt.Keyboard[0][0].Data != CallbackAddAnime {
		t.Fatalf("admin greeting=%+v", s)
	}
	if s.Opt.ParseMode != "HTML" {
		t.Fatalf("parse mode=%q", s.Opt.ParseMode)
	}

	if err := h.handle(t, privateText(42, "/start@AnimeBot")); err != nil {
		t.Fatal(err)
	}
	if s := lastSent(t, h.ad, 42); !strings.Contains(s.Text, "Welcome!") || len(s.Opt.Keyboard) != 0 {
		t.Fatalf("welcome=%+v", s)
	}

	ids, _ := h.store.ListAllUserIDs(context.Background())
	if len(ids) != 2 {
		t.Fatalf("users=%v", ids)
	}
}

func TestAddAnimeCallbackIsAdminOnly(t *testing.T) {
	h := newHarness(t, transporttest.New(), nil)

	if err := h.handle(t, callback(42, CallbackAddAnime)); err != nil {
		t.Fatal(err)
	}
	ans := h.ad.AnswersSnapshot()
	if len(ans) != 1 || ans[0].Text != NotAdminAlert || !ans[0].Alert {
		t.Fatalf("answers=%+v", ans)
	}

	if err := h.handle(t, callback(adminID, CallbackAddAnime)); err != nil {
		t.Fatal(err)
	}
	edits := h.ad.EditsSnapshot()
	if len(edits) != 1 || edits[0].Ref.MessageID != 55 || !strings.Contains(edits[0].Text, "Poora Naam") {
		t.Fatalf("edits=%+v", edits)
	}
	if st := h.bot.deps.Publish.State(adminID); st != publish.AwaitingName {
		t.Fatalf("state=%s", st)
	}
}

func TestAddFlowPublishBroadcastAndQuery(t *testing.T) {
	h := newHarness(t, transporttest.New(), nil)
	ctx := context.Background()
	_ = h.store.UpsertUser(ctx, 42)
	_ = h.store.UpsertUser(ctx, 43)

	_ = h.handle(t, callback(adminID, CallbackAddAnime))
	_ = h.handle(t, privateText(adminID, "   "))
	if s := lastSent(t, h.ad, adminID); !strings.Contains(s.Text, "khali") {
		t.Fatalf("blank name reply=%q", s.Text)
	}
	_ = h.handle(t, privateText(adminID, "Naruto <Shippuden>"))
	if s := lastSent(t, h.ad, adminID); !strings.Contains(s.Text, "Link (URL)") {
		t.Fatalf("link prompt=%q", s.Text)
	}
	_ = h.handle(t, privateText(adminID, "https://example.com/naruto"))
	final := lastSent(t, h.ad, adminID).Text
	token, ok := publish.ExtractToken(final)
	if !ok {
		t.Fatalf("no token in %q", final)
	}

	if err := h.handle(t, channelPost(channelID, 77, "Naruto "+publish.Delimited(token))); err != nil {
		t.Fatal(err)
	}
	if s := lastSent(t, h.ad, adminID); !strings.Contains(s.Text, "Successfully Added") || !strings.Contains(s.Text, "Naruto &lt;Shippuden&gt;") {
		t.Fatalf("success=%q", s.Text)
	}

	// every registered user (the admin included) gets the announcement
	waitFor(t, 5*time.Second, func() bool { return len(h.ad.CopiesSnapshot()) == 3 })
	for _, c := range h.ad.CopiesSnapshot() {
		if c.From.ChatID != channelID || c.From.MessageID != 77 || !strings.Contains(c.Opt.Caption, "NEW ANIME ALERT") {
			t.Fatalf("announcement=%+v", c)
		}
	}

	if err := h.handle(t, privateText(42, "  NARUTO <shippuden> ")); err != nil {
		t.Fatal(err)
	}
	copies := h.ad.CopiesSnapshot()
	got := copies[len(copies)-1]
	if got.To != 42 || got.From.MessageID != 77 || got.Opt.Keyboard[0][0].URL != "https://example.com/naruto" {
		t.Fatalf("delivery=%+v", got)
	}
	waitFor(t, 2*time.Second, func() bool {
		for _, d := range h.ad.DeletedSnapshot() {
			if d == got.Ref {
				return true
			}
		}
		return false
	})
}

func TestQueryUsesOracleAndLearns(t *testing.T) {
	calls := 0
	o := oracle.Func(func(_ context.Context, q string, names []string) (string, error) {
		calls++
		if q == "narto" {
			return "Naruto", nil
		}
		return "none", nil
	})
	h := newHarness(t, transporttest.New(), o)
	seedPublished(t, h.store, "Naruto", "https://n", "ANIME-AAAAAA", 10)

	_ = h.handle(t, privateText(42, "narto"))
	if c := h.ad.CopiesSnapshot(); len(c) != 1 || c[0].From.MessageID != 10 {
		t.Fatalf("copies=%+v", c)
	}
	_ = h.handle(t, privateText(42, "Narto"))
	if calls != 1 {
		t.Fatalf("learned synonym not used; oracle calls=%d", calls)
	}

	_ = h.handle(t, privateText(42, "<b>bleach</b>"))
	s := lastSent(t, h.ad, 42)
	if !strings.Contains(s.Text, "<code>&lt;b&gt;bleach&lt;/b&gt;</code>") {
		t.Fatalf("not found=%q", s.Text)
	}
}

func TestQueryOnEmptyCatalog(t *testing.T) {
	h := newHarness(t, transporttest.New(), nil)
	_ = h.handle(t, privateText(42, "anything"))
	if s := lastSent(t, h.ad, 42); !strings.Contains(s.Text, "Database mein koi anime nahi hai") {
		t.Fatalf("reply=%q", s.Text)
	}
}

func TestPendingRecordIsNotDelivered(t *testing.T) {
	h := newHarness(t, transporttest.New(), nil)
	if _, err := h.store.CreatePending(context.Background(), "Bleach", "https://b", "ANIME-BBBBBB"); err != nil {
		t.Fatal(err)
	}
	_ = h.handle(t, privateText(42, "bleach"))
	if len(h.ad.CopiesSnapshot()) != 0 {
		t.Fatalf("pending record delivered")
	}
	if s := lastSent(t, h.ad, 42); !strings.Contains(s.Text, "nahi mila") {
		t.Fatalf("reply=%q", s.Text)
	}
}

type copyFails struct{ *transporttest.Adapter }

func (copyFails) CopyMessage(context.Context, kit.ChatTarget, kit.MessageRef, *kit.CopyOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, errors.New("message to copy not found")
}

func TestCopyFailureRepliesGenericError(t *testing.T) {
	fake := transporttest.New()
	h := newHarness(t, copyFails{fake}, nil)
	seedPublished(t, h.store, "Naruto", "https://n", "ANIME-AAAAAA", 10)

	err := h.handle(t, privateText(42, "naruto"))
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if s := lastSent(t, fake, 42); !strings.Contains(s.Text, "gadbad") {
		t.Fatalf("reply=%q", s.Text)
	}
	if c := h.del.Counters(); c.Scheduled != 0 {
		t.Fatalf("deletion scheduled for failed copy")
	}
}

func TestChannelPosts(t *testing.T) {
	h := newHarness(t, transporttest.New(), nil)

	// other chats and token-less posts are ignored
	_ = h.handle(t, channelPost(-999, 1, "|ANIME-ABCDEF|"))
	_ = h.handle(t, channelPost(channelID, 2, "just a post"))
	if len(h.ad.SentTo(adminID)) != 0 {
		t.Fatalf("admin notified for ignored posts")
	}

	_ = h.handle(t, channelPost(channelID, 3, "oops |ANIME-ABCDEF|"))
	if s := lastSent(t, h.ad, adminID); !strings.Contains(s.Text, "ANIME-ABCDEF") || !strings.Contains(s.Text, "Error!") {
		t.Fatalf("fail notice=%q", s.Text)
	}
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t, transporttest.New(), nil)
	ctx := context.Background()

	_ = h.handle(t, privateText(adminID, "/cancel"))
	if s := lastSent(t, h.ad, adminID); !strings.Contains(s.Text, "chal nahi raha") {
		t.Fatalf("cancel idle=%q", s.Text)
	}
	_ = h.handle(t, callback(adminID, CallbackAddAnime))
	_ = h.handle(t, privateText(adminID, "/cancel"))
	if st := h.bot.deps.Publish.State(adminID); st != publish.Idle {
		t.Fatalf("state after cancel=%s", st)
	}

	if _, err := h.store.CreatePending(ctx, "Bleach", "https://b", "ANIME-0A0B0C"); err != nil {
		t.Fatal(err)
	}
	_ = h.handle(t, privateText(adminID, "/discard |anime-0a0b0c|"))
	if s := lastSent(t, h.ad, adminID); !strings.Contains(s.Text, "hata diya") {
		t.Fatalf("discard=%q", s.Text)
	}
	_ = h.handle(t, privateText(adminID, "/discard ANIME-0A0B0C"))
	if s := lastSent(t, h.ad, adminID); !strings.Contains(s.Text, "koi pending record nahi") {
		t.Fatalf("discard again=%q", s.Text)
	}
	_ = h.handle(t, privateText(adminID, "/discard"))
	if s := lastSent(t, h.ad, adminID); !strings.Contains(s.Text, "Usage") {
		t.Fatalf("usage=%q", s.Text)
	}

	seedPublished(t, h.store, "Naruto", "https://n", "ANIME-AAAAAA", 10)
	_ = h.handle(t, privateText(adminID, "/stats"))
	if s := lastSent(t, h.ad, adminID); !strings.Contains(s.Text, "<b>Published</b>: 1") {
		t.Fatalf("stats=%q", s.Text)
	}

	// for everyone else admin commands are plain queries
	_ = h.handle(t, privateText(42, "/stats"))
	if s := lastSent(t, h.ad, 42); !strings.Contains(s.Text, "nahi mila") {
		t.Fatalf("non-admin stats=%q", s.Text)
	}
}

type orderResolver struct {
	mu   sync.Mutex
	seen map[string][]string
}

func (r *orderResolver) Resolve(ctx context.Context, q string) (resolver.Result, error) {
	// uneven work per query
	time.Sleep(time.Duration(len(q)%3) * time.Millisecond)
	r.mu.Lock()
	chat := strings.SplitN(q, "-", 2)[0]
	r.seen[chat] = append(r.seen[chat], q)
	r.mu.Unlock()
	return resolver.Result{Kind: resolver.NoMatch}, nil
}

type noStore struct{}

func (noStore) UpsertUser(context.Context, int64) error { return nil }

func (noStore) Stats(context.Context) (catalog.Stats, error) { return catalog.Stats{}, nil }

func TestRunKeepsPerChatOrder(t *testing.T) {
	ad := transporttest.New()
	res := &orderResolver{seen: map[string][]string{}}
	b := New(Config{AdminID: adminID, ChannelID: channelID, Workers: 4}, Deps{
		Adapter: ad, Store: noStore{}, Resolver: res,
	}, logx.Nop())

	updates := make(chan kit.Update)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, updates) }()

	chats := []int64{10, 11, 12}
	want := map[string][]string{}
	for i := 0; i < 15; i++ {
		for _, c := range chats {
			key := strconv.FormatInt(c, 10)
			q := key + "-" + strconv.Itoa(i)
			want[key] = append(want[key], q)
			updates <- privateText(c, q)
		}
	}
	waitFor(t, 5*time.Second, func() bool {
		return len(ad.SentTo(10))+len(ad.SentTo(11))+len(ad.SentTo(12)) == 45
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	res.mu.Lock()
	defer res.mu.Unlock()
	for chat, qs := range want {
		got := res.seen[chat]
		if strings.Join(got, ",") != strings.Join(qs, ",") {
			t.Fatalf("chat %s order=%v want %v", chat, got, qs)
		}
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		cmd  string
		args int
		ok   bool
	}{
		{"/start", "start", 0, true},
		{"/Discard@AnimeBot ANIME-ABCDEF", "discard", 1, true},
		{"naruto", "", 0, false},
		{"/", "", 0, false},
	}
	for _, tc := range tests {
		cmd, args, ok := parseCommand(tc.in)
		if ok != tc.ok || cmd != tc.cmd || len(args) != tc.args {
			t.Fatalf("%q: got %q %v %v", tc.in, cmd, args, ok)
		}
	}
}

func TestLaneForIsStable(t *testing.T) {
	for _, id := range []int64{1, -1001234567890, 42} {
		a, b := laneFor(id, 8), laneFor(id, 8)
		if a != b || a < 0 || a >= 8 {
			t.Fatalf("lane(%d)=%d,%d", id, a, b)
		}
	}
}
