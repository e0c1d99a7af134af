package tgui

import "testing"

func TestFillEscapesValues(t *testing.T) {
	got := Fill("Search {query} in {where}", "query", "<Naruto & co>", "where", B("db"))
	want := H("Search &lt;Naruto &amp; co&gt; in <b>db</b>")
	if got != want {
		t.Fatalf("Fill=%q want %q", got, want)
	}
}

func TestBuilderAttachesKeyboard(t *testing.T) {
	m := New().
		Title("🎬", "Naruto").
		KV("Token", "ANIME-ABC123").
		Inline(NewInline().Row(URLBtn("Open", "https://t.me/x"))).
		Build()
	if m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview {
		t.Fatalf("unexpected options: %+v", m.Opt)
	}
	if len(m.Opt.Keyboard) != 1 || m.Opt.Keyboard[0][0].URL != "https://t.me/x" {
		t.Fatalf("keyboard=%+v", m.Opt.Keyboard)
	}
	want := "🎬 <b>Naruto</b>\n• <b>Token</b>: ANIME-ABC123"
	if m.Text != want {
		t.Fatalf("text=%q want %q", m.Text, want)
	}
}

func TestTruncRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc…"},
		{"नमस्ते", 2, "नम…"},
		{"x", 0, ""},
	}
	for _, c := range cases {
		if got := TruncRunes(c.in, c.n); got != c.want {
			t.Fatalf("TruncRunes(%q,%d)=%q want %q", c.in, c.n, got, c.want)
		}
	}
}
