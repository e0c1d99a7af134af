package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	logx "animefinder/pkg/logx"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	st, err := newSQLStore(ctx, db, dialect{
		name:         "postgres",
		migration:    "postgres.sql",
		dollarParams: true,
		isUnique:     isPostgresUnique,
	}, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func isPostgresUnique(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == "23505"
}
