package adapter

import "strings"

const telegramTextLimit = 4000

// splitTelegramText breaks s into chunks of at most limit runes. A chunk ends
// after the last newline in its final two thirds when there is one, and in
// HTML mode never inside a tag.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rest := []rune(s)
	if len(rest) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, "HTML")

	var out []string
	for len(rest) > 0 {
		n := len(rest)
		if n > limit {
			n = chunkEnd(rest, limit, html)
		}
		out = append(out, strings.TrimRight(string(rest[:n]), "\n"))
		rest = rest[n:]
		for len(rest) > 0 && rest[0] == '\n' {
			rest = rest[1:]
		}
	}
	return out
}

func chunkEnd(rs []rune, limit int, html bool) int {
	end := limit
	if i := lastRune(rs[limit/3:limit], '\n'); i >= 0 {
		end = limit/3 + i + 1
	}
	if html {
		if open := lastRune(rs[:end], '<'); open > 1 && open > lastRune(rs[:end], '>') {
			end = open
		}
	}
	return end
}

func lastRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
