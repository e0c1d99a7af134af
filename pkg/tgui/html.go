package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H is Telegram HTML (ParseMode "HTML") that is already escaped.
type H string

func (h H) String() string { return string(h) }

func Esc(s string) H { return H(html.EscapeString(s)) }

func B(s string) H { return H("<b>" + html.EscapeString(s) + "</b>") }

// Fill substitutes {key} placeholders in tmpl. Plain values are escaped;
// H values are inserted as they are.
func Fill(tmpl H, kv ...any) H {
	var pairs []string
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		pairs = append(pairs, "{"+key+"}", fillValue(kv[i+1]))
	}
	if len(pairs) == 0 {
		return tmpl
	}
	return H(strings.NewReplacer(pairs...).Replace(string(tmpl)))
}

func fillValue(v any) string {
	switch x := v.(type) {
	case H:
		return string(x)
	case string:
		return html.EscapeString(x)
	default:
		return html.EscapeString(fmt.Sprint(x))
	}
}
