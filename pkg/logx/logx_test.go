package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "animefinder/internal/transport"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	to   []int64
}

func (r *recordingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	r.to = append(r.to, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.sent)}, nil
}

func (r *recordingSender) snapshot() ([]string, []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...), append([]int64(nil), r.to...)
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Info("nothing happens", String("k", "v"))
	if Nop().IsZero() {
		t.Fatalf("Nop logger is not zero")
	}
}

func TestAdminAlertsForwardWarnings(t *testing.T) {
	svc, log := New(Config{
		Level:       "DEBUG",
		AdminAlerts: AlertConfig{Enabled: true, MinLevel: "WARN", RatePerSec: 50},
	})
	defer svc.Close()

	rec := &recordingSender{}
	svc.SetAlertTarget(rec, 99)

	log.Info("routine")
	log.Warn("store slow", String("op", "finalize"), Int("attempt", 2))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent, _ := rec.snapshot(); len(sent) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	sent, to := rec.snapshot()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one alert, got %d: %q", len(sent), sent)
	}
	if to[0] != 99 {
		t.Fatalf("alert sent to %d", to[0])
	}
	if !strings.HasPrefix(sent[0], "[WARN] store slow") {
		t.Fatalf("unexpected alert text %q", sent[0])
	}
	if !strings.Contains(sent[0], "- op=finalize") || !strings.Contains(sent[0], "- attempt=2") {
		t.Fatalf("fields missing from alert %q", sent[0])
	}
}

func TestFormatAlertNonJSON(t *testing.T) {
	got := formatAlert([]byte("  plain line \n"))
	if got != "plain line" {
		t.Fatalf("got %q", got)
	}
}

func TestValidLevel(t *testing.T) {
	for _, ok := range []string{"", "debug", "INFO", "warning", "error"} {
		if !ValidLevel(ok) {
			t.Fatalf("%q should be valid", ok)
		}
	}
	if ValidLevel("loud") {
		t.Fatalf("loud should be invalid")
	}
}
