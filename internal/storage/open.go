package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"animefinder/internal/catalog"
	logx "animefinder/pkg/logx"
)

// Open initializes the configured store and verifies it is reachable.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	var (
		st  Store
		err error
	)
	switch driver {
	case "memory":
		st, err = openMemory("", log)
	case "file":
		st, err = openMemory(cfg.Path, log)
	case "sqlite", "sqlite3":
		st, err = openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		st, err = openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", driver, err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(pctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("storage %s unreachable: %w", driver, err)
	}
	log.Info("storage opened", logx.String("driver", driver))
	return st, nil
}

func validatePending(name, viewLink, token string) (string, string, string, error) {
	name = strings.TrimSpace(name)
	viewLink = strings.TrimSpace(viewLink)
	token = strings.TrimSpace(token)
	switch {
	case name == "":
		return "", "", "", catalog.Validation("name", "is empty")
	case viewLink == "":
		return "", "", "", catalog.Validation("view link", "is empty")
	case token == "":
		return "", "", "", catalog.Validation("token", "is empty")
	}
	return name, viewLink, token, nil
}
