package resolver

import "animefinder/internal/catalog"

// Kind tags a resolution outcome.
type Kind int

const (
	NoMatch Kind = iota
	Match
	// CatalogEmpty means there was nothing to match against.
	CatalogEmpty
)

func (k Kind) String() string {
	switch k {
	case Match:
		return "match"
	case CatalogEmpty:
		return "catalog_empty"
	default:
		return "no_match"
	}
}

// Result is the outcome of Resolve. Anime is set only for Match.
type Result struct {
	Kind  Kind
	Anime catalog.Anime
	// ViaOracle is true when the match came from the oracle rather than a
	// stored term.
	ViaOracle bool
	// Learned is true when the query was stored as a new synonym.
	Learned bool
}
