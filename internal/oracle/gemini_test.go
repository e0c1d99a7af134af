package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logx "animefinder/pkg/logx"
)

func TestGeminiSuggest(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if r.URL.RawQuery != "" {
			t.Errorf("query string sent: %q", r.URL.RawQuery)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  Naruto\n"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "k1", BaseURL: srv.URL, Model: "models/gemini-x"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	out, err := g.Suggest(context.Background(), "narto", []string{"Naruto", "Bleach"})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if out != "Naruto" {
		t.Fatalf("answer=%q", out)
	}
	if gotPath != "/models/gemini-x:generateContent" || gotKey != "k1" {
		t.Fatalf("path=%q key=%q", gotPath, gotKey)
	}
	if len(gotReq.Contents) != 1 || !strings.Contains(gotReq.Contents[0].Parts[0].Text, "'narto'") {
		t.Fatalf("unexpected request: %+v", gotReq)
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.Temperature == nil || *gotReq.GenerationConfig.Temperature != 0 {
		t.Fatalf("temperature not pinned to zero")
	}
}

func TestGeminiErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api message", http.StatusBadRequest, `{"error":{"message":"bad key"}}`, "bad key"},
		{"bare status", http.StatusInternalServerError, `oops`, "500"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, "empty answer"},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, "empty answer"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				_, _ = w.Write([]byte(c.body))
			}))
			defer srv.Close()
			g, _ := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL}, logx.Nop())
			_, err := g.Suggest(context.Background(), "q", []string{"A"})
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("err=%v, want containing %q", err, c.want)
			}
		})
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(GeminiConfig{APIKey: " "}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("aot", []string{"Attack on Titan", "Naruto"})
	if !strings.Contains(p, "They typed: 'aot'") {
		t.Fatalf("query missing: %q", p)
	}
	if strings.Count(p, "Attack on Titan, Naruto") != 2 {
		t.Fatalf("list should appear twice: %q", p)
	}
	if !strings.HasSuffix(p, "\n\nAnime List: Attack on Titan, Naruto") {
		t.Fatalf("unexpected suffix: %q", p)
	}
}

func TestIsNone(t *testing.T) {
	for _, s := range []string{"NONE", "none", " None \n"} {
		if !IsNone(s) {
			t.Fatalf("IsNone(%q)=false", s)
		}
	}
	if IsNone("Nonesuch") {
		t.Fatalf("IsNone matched a title")
	}
}

func TestGeminiTransportErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "SECRET-KEY-123", BaseURL: base}, logx.Nop())
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	_, err = g.Suggest(context.Background(), "narto", []string{"Naruto"})
	if err == nil {
		t.Fatalf("expected a transport error")
	}
	if strings.Contains(err.Error(), "SECRET-KEY-123") {
		t.Fatalf("api key in error: %v", err)
	}
}
