package systemd

import (
	"context"
	"testing"
)

func TestNotifyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	if sent, err := Ready(); sent || err != nil {
		t.Fatalf("ready sent=%v err=%v", sent, err)
	}
	if sent, err := Stopping(); sent || err != nil {
		t.Fatalf("stopping sent=%v err=%v", sent, err)
	}
	if err := Watchdog(context.Background(), nil); err != nil {
		t.Fatalf("watchdog: %v", err)
	}
}
