package publish

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"regexp"
	"strings"
)

// TokenPrefix starts every publish token.
const TokenPrefix = "ANIME-"

// tokenPattern finds a token between '|' delimiters in channel post text.
var tokenPattern = regexp.MustCompile(`\|(ANIME-[0-9A-F]{6})\|`)

// NewToken returns ANIME- followed by 6 uppercase hex characters (24 random bits).
func NewToken() (string, error) {
	return newToken(rand.Reader)
}

func newToken(r io.Reader) (string, error) {
	var b [3]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", err
	}
	return TokenPrefix + strings.ToUpper(hex.EncodeToString(b[:])), nil
}

// ExtractToken returns the first delimited token in text.
func ExtractToken(text string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Delimited renders token the way it must appear in a channel post.
func Delimited(token string) string { return "|" + token + "|" }
