package storage

import (
	"context"
	"errors"
	"time"

	"animefinder/internal/catalog"
)

var ErrClosed = errors.New("storage closed")

// Config selects and configures a driver.
type Config struct {
	Driver      string
	DSN         string // postgres connection string
	Path        string // sqlite database file or memory snapshot file
	BusyTimeout time.Duration
}

// Store is the record store.
//
// Terms are matched after catalog.NormalizeTerm. When several records share a
// term, published records win over pending ones, then the oldest record wins.
type Store interface {
	// CreatePending inserts a pending record. Empty name, link or token is
	// catalog.ErrValidation; a token already held by a pending record is
	// catalog.ErrConflict.
	CreatePending(ctx context.Context, name, viewLink, token string) (int64, error)
	FindPendingByToken(ctx context.Context, token string) (catalog.Anime, bool, error)
	// Finalize atomically moves a pending record to published. A missing record
	// is catalog.ErrNotFound, an already published one catalog.ErrAlreadyPublished.
	Finalize(ctx context.Context, id int64, channelPostID int) error
	FindByTerm(ctx context.Context, term string) (catalog.Anime, bool, error)
	// AddSynonym adds a normalized term to the record named exactly name.
	AddSynonym(ctx context.Context, name, synonym string) error
	ListAllNames(ctx context.Context) ([]string, error)

	UpsertUser(ctx context.Context, id int64) error
	ListAllUserIDs(ctx context.Context) ([]int64, error)

	// DeletePending removes an abandoned pending record by token.
	DeletePending(ctx context.Context, token string) (bool, error)
	// PurgePendingBefore removes pending records created before cutoff.
	PurgePendingBefore(ctx context.Context, cutoff time.Time) (int, error)
	Stats(ctx context.Context) (catalog.Stats, error)

	Ping(ctx context.Context) error
	Close() error
}
