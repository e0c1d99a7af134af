package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"animefinder/internal/catalog"
	"animefinder/internal/config"
	"animefinder/internal/oracle"
	"animefinder/internal/publish"
	kit "animefinder/internal/transport"
	"animefinder/internal/transport/transporttest"
	logx "animefinder/pkg/logx"
)

const (
	adminID   = int64(1)
	channelID = int64(-1001)
)

func testEnv() config.Env {
	return config.Env{
		BotToken:       "test",
		AdminID:        adminID,
		ChannelID:      channelID,
		GeminiAPIKey:   "k",
		DatabaseDriver: "memory",
		Port:           "0",
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

func private(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: from, FromID: from, Text: text, IsPrivate: true}}
}

func TestAppEndToEnd(t *testing.T) {
	ad := transporttest.New()
	orc := oracle.Func(func(_ context.Context, q string, names []string) (string, error) {
		if q == "onepiece" {
			return "One Piece", nil
		}
		return oracle.NoneAnswer, nil
	})
	ctx := context.Background()
	a, err := New(ctx, testEnv(), config.NewManager("", logx.Nop()), Options{Adapter: ad, Oracle: orc})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopAppStop) }()

	// nothing published yet
	a.updates <- private(42, "onepiece")
	waitFor(t, 2*time.Second, func() bool { return len(ad.SentTo(42)) == 1 })

	a.updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "c", FromID: adminID, ChatID: adminID, MessageID: 9, Data: "add_anime_start"}}
	a.updates <- private(adminID, "One Piece")
	a.updates <- private(adminID, "https://example.com/op")
	var token string
	waitFor(t, 2*time.Second, func() bool {
		for _, s := range ad.SentTo(adminID) {
			if tok, ok := publish.ExtractToken(s.Text); ok {
				token = tok
				return true
			}
		}
		return false
	})

	a.updates <- kit.Update{Kind: kit.UpdateChannelPost, Message: &kit.Message{ID: 500, ChatID: channelID, Caption: "One Piece " + publish.Delimited(token)}}
	waitFor(t, 2*time.Second, func() bool {
		st, err := a.store.Stats(ctx)
		return err == nil && st.Published == 1
	})

	a.updates <- private(42, "onepiece")
	waitFor(t, 3*time.Second, func() bool {
		for _, c := range ad.CopiesSnapshot() {
			if c.To == 42 && c.From.MessageID == 500 && len(c.Opt.Keyboard) == 1 {
				return true
			}
		}
		return false
	})
}

type fakePurger struct {
	cutoff time.Time
	n      int
	err    error
}

func (f *fakePurger) PurgePendingBefore(_ context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestSweepPendingUsesCurrentTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ttl := 72 * time.Hour
	p := &fakePurger{n: 2}
	job := sweepPendingJob(p, func() time.Duration { return ttl }, func() time.Time { return now }, logx.Nop())

	if err := job(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !p.cutoff.Equal(now.Add(-72 * time.Hour)) {
		t.Fatalf("cutoff=%s", p.cutoff)
	}
	ttl = time.Hour
	_ = job(context.Background())
	if !p.cutoff.Equal(now.Add(-time.Hour)) {
		t.Fatalf("cutoff after reload=%s", p.cutoff)
	}

	p.err = errors.New("db down")
	if err := job(context.Background()); err == nil {
		t.Fatalf("error swallowed")
	}
}

type fakeStats struct{ s catalog.Stats }

func (f fakeStats) Stats(context.Context) (catalog.Stats, error) { return f.s, nil }

func TestRefreshStatsJob(t *testing.T) {
	if err := refreshStatsJob(fakeStats{catalog.Stats{Published: 3}}, logx.Nop())(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestMapStorageConfig(t *testing.T) {
	tests := []struct {
		env    config.Env
		driver string
	}{
		{config.Env{DatabaseDriver: "sqlite", SQLitePath: "/x.db"}, "sqlite"},
		{config.Env{DatabaseDriver: "pgx", DatabaseURL: "postgres://x"}, "postgres"},
		{config.Env{DatabaseDriver: "memory"}, "memory"},
		{config.Env{DatabaseDriver: "file", SQLitePath: "/x.json"}, "file"},
	}
	for _, tc := range tests {
		got := mapStorageConfig(tc.env)
		if got.Driver != tc.driver {
			t.Fatalf("%s: driver=%s", tc.env.DatabaseDriver, got.Driver)
		}
	}
	if got := mapStorageConfig(config.Env{DatabaseDriver: "postgres", DatabaseURL: "dsn"}); got.DSN != "dsn" {
		t.Fatalf("dsn=%q", got.DSN)
	}
	if !strings.HasSuffix(healthAddr("8080"), ":8080") {
		t.Fatalf("addr=%s", healthAddr("8080"))
	}
}

// fdOpen reports whether this process holds a descriptor for path.
func fdOpen(t *testing.T, path string) bool {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no /proc/self/fd")
	}
	for _, e := range entries {
		if target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name())); err == nil && target == path {
			return true
		}
	}
	return false
}

func TestNewReleasesLogFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "bot.log")
	tuning := filepath.Join(dir, "tuning.yaml")
	body := "logging:\n  file:\n    enabled: true\n    path: " + logPath + "\n"
	if err := os.WriteFile(tuning, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	env := testEnv()
	env.GeminiAPIKey = "" // the oracle cannot be built
	_, err := New(context.Background(), env, config.NewManager(tuning, logx.Nop()), Options{Adapter: transporttest.New()})
	if err == nil {
		t.Fatalf("expected New to fail without an oracle key")
	}
	if _, statErr := os.Stat(logPath); statErr != nil {
		t.Fatalf("log file never opened: %v", statErr)
	}
	if fdOpen(t, logPath) {
		t.Fatalf("log file still open after failed New")
	}
}
