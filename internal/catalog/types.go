package catalog

import (
	"strings"
	"time"
)

// Anime is a catalog entry.
//
// A record is either pending (PublishToken set, ChannelPostID zero) or
// published (PublishToken empty, ChannelPostID set). Never both, never neither.
type Anime struct {
	ID            int64
	Name          string
	SearchTerms   []string
	ViewLink      string
	PublishToken  string
	ChannelPostID int
	CreatedAt     time.Time
	PublishedAt   time.Time
}

func (a Anime) Pending() bool   { return a.PublishToken != "" && a.ChannelPostID == 0 }
func (a Anime) Published() bool { return a.PublishToken == "" && a.ChannelPostID != 0 }

// CanonicalTerm is the lowercased, trimmed display name.
func (a Anime) CanonicalTerm() string { return NormalizeTerm(a.Name) }

// HasTerm reports whether term (in any case or padding) is one of the record's search terms.
func (a Anime) HasTerm(term string) bool {
	t := NormalizeTerm(term)
	for _, s := range a.SearchTerms {
		if s == t {
			return true
		}
	}
	return false
}

// User is a bot user eligible for broadcasts.
type User struct {
	ID           int64
	LastActiveAt time.Time
}

// Stats is a point-in-time count of catalog rows.
type Stats struct {
	Published int
	Pending   int
	Users     int
}

// NormalizeTerm lowercases and trims a search term.
func NormalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
