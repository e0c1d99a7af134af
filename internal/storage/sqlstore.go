package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"animefinder/internal/catalog"
	logx "animefinder/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dialect carries the few things that differ between sqlite and postgres.
type dialect struct {
	name         string
	migration    string
	dollarParams bool
	isUnique     func(error) bool
}

// sqlStore implements Store on database/sql. Queries are written with '?'
// placeholders and rebound for dialects that want $n.
type sqlStore struct {
	db  *sql.DB
	log logx.Logger
	d   dialect
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, log logx.Logger) (*sqlStore, error) {
	s := &sqlStore{db: db, log: log, d: d}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/" + s.d.migration)
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) q(query string) string {
	if !s.d.dollarParams {
		return query
	}
	return rebind(query)
}

// rebind rewrites '?' placeholders to $1..$n.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

const animeColumns = `a.id, a.name, a.view_link, a.publish_token, a.channel_post_id, a.created_at, a.published_at`

// termOrder resolves ties between records sharing a term or name.
const termOrder = `ORDER BY (a.channel_post_id IS NULL), a.created_at, a.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnime(row rowScanner) (catalog.Anime, error) {
	var (
		a           catalog.Anime
		token       sql.NullString
		postID      sql.NullInt64
		createdAt   int64
		publishedAt sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.Name, &a.ViewLink, &token, &postID, &createdAt, &publishedAt); err != nil {
		return catalog.Anime{}, err
	}
	a.PublishToken = token.String
	a.ChannelPostID = int(postID.Int64)
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	if publishedAt.Valid {
		a.PublishedAt = time.UnixMilli(publishedAt.Int64).UTC()
	}
	return a, nil
}

func (s *sqlStore) loadTerms(ctx context.Context, a *catalog.Anime) error {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT term FROM search_terms WHERE anime_id = ? ORDER BY term`), a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	a.SearchTerms = a.SearchTerms[:0]
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		a.SearchTerms = append(a.SearchTerms, t)
	}
	return rows.Err()
}

func (s *sqlStore) findOne(ctx context.Context, query string, args ...any) (catalog.Anime, bool, error) {
	a, err := scanAnime(s.db.QueryRowContext(ctx, s.q(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Anime{}, false, nil
	}
	if err != nil {
		return catalog.Anime{}, false, err
	}
	if err := s.loadTerms(ctx, &a); err != nil {
		return catalog.Anime{}, false, err
	}
	return a, true, nil
}

func (s *sqlStore) CreatePending(ctx context.Context, name, viewLink, token string) (int64, error) {
	name, viewLink, token, err := validatePending(name, viewLink, token)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		s.q(`INSERT INTO anime(name, view_link, publish_token, created_at) VALUES(?,?,?,?) RETURNING id`),
		name, viewLink, token, time.Now().UnixMilli(),
	).Scan(&id)
	if err != nil {
		if s.d.isUnique(err) {
			return 0, fmt.Errorf("%w: token %s already pending", catalog.ErrConflict, token)
		}
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		s.q(`INSERT INTO search_terms(anime_id, term) VALUES(?,?)`),
		id, catalog.NormalizeTerm(name),
	); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *sqlStore) FindPendingByToken(ctx context.Context, token string) (catalog.Anime, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return catalog.Anime{}, false, nil
	}
	return s.findOne(ctx, `SELECT `+animeColumns+` FROM anime a WHERE a.publish_token = ?`, token)
}

func (s *sqlStore) Finalize(ctx context.Context, id int64, channelPostID int) error {
	if channelPostID <= 0 {
		return catalog.Validation("channel post id", "must be positive")
	}
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE anime SET channel_post_id = ?, publish_token = NULL, published_at = ?
		 WHERE id = ? AND publish_token IS NOT NULL`),
		channelPostID, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var existing sql.NullInt64
	err = s.db.QueryRowContext(ctx, s.q(`SELECT channel_post_id FROM anime WHERE id = ?`), id).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: record %d", catalog.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: record %d", catalog.ErrAlreadyPublished, id)
}

func (s *sqlStore) FindByTerm(ctx context.Context, term string) (catalog.Anime, bool, error) {
	t := catalog.NormalizeTerm(term)
	if t == "" {
		return catalog.Anime{}, false, nil
	}
	return s.findOne(ctx,
		`SELECT `+animeColumns+` FROM anime a JOIN search_terms st ON st.anime_id = a.id
		 WHERE st.term = ? `+termOrder+` LIMIT 1`, t)
}

func (s *sqlStore) AddSynonym(ctx context.Context, name, synonym string) error {
	syn := catalog.NormalizeTerm(synonym)
	if syn == "" {
		return catalog.Validation("synonym", "is empty")
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT a.id FROM anime a WHERE a.name = ? `+termOrder+` LIMIT 1`), name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: no record named %q", catalog.ErrNotFound, name)
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO search_terms(anime_id, term) VALUES(?,?) ON CONFLICT DO NOTHING`), id, syn)
	return err
}

func (s *sqlStore) ListAllNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM anime ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpsertUser(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO bot_users(id, last_active_at) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET last_active_at = excluded.last_active_at`),
		id, time.Now().UnixMilli(),
	)
	return err
}

func (s *sqlStore) ListAllUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM bot_users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeletePending(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	n, err := s.deletePendingWhere(ctx, `publish_token = ?`, token)
	return n > 0, err
}

func (s *sqlStore) PurgePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deletePendingWhere(ctx, `publish_token IS NOT NULL AND created_at < ?`, cutoff.UnixMilli())
}

// deletePendingWhere removes matching anime rows and their terms. Terms are
// deleted explicitly since sqlite only cascades with foreign_keys enabled.
func (s *sqlStore) deletePendingWhere(ctx context.Context, where string, arg any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		s.q(`DELETE FROM search_terms WHERE anime_id IN (SELECT id FROM anime WHERE `+where+`)`), arg,
	); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM anime WHERE `+where), arg)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *sqlStore) Stats(ctx context.Context) (catalog.Stats, error) {
	var st catalog.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM anime WHERE publish_token IS NULL),
		(SELECT COUNT(*) FROM anime WHERE publish_token IS NOT NULL),
		(SELECT COUNT(*) FROM bot_users)`,
	).Scan(&st.Published, &st.Pending, &st.Users)
	return st, err
}

func (s *sqlStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
