// Package oracle asks a language model which catalog title a query means.
package oracle

import (
	"context"
	"errors"
	"strings"
)

// NoneAnswer is the sentinel the model returns when nothing matches.
const NoneAnswer = "NONE"

var ErrEmptyAnswer = errors.New("oracle: empty answer")

// Oracle picks the catalog title that best matches query, or NoneAnswer.
// The returned text is trimmed but otherwise unvalidated.
type Oracle interface {
	Suggest(ctx context.Context, query string, candidates []string) (string, error)
}

// IsNone reports whether answer is the no-match sentinel.
func IsNone(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), NoneAnswer)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, query string, candidates []string) (string, error)

func (f Func) Suggest(ctx context.Context, query string, candidates []string) (string, error) {
	return f(ctx, query, candidates)
}
