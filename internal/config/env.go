package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Env is the process configuration read once at startup.
type Env struct {
	BotToken     string
	AdminID      int64
	ChannelID    int64
	GeminiAPIKey string
	GeminiModel  string

	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string

	// Port is the health listener port.
	Port string
	// ConfigFile is the optional tuning file.
	ConfigFile string
}

// LoadEnv loads envFile (if it exists) into the environment without
// overriding variables already set, then reads Env. Every problem is
// reported, not just the first.
func LoadEnv(envFile string) (Env, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Env{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return ReadEnv(os.Getenv)
}

// ReadEnv builds Env from a lookup function.
func ReadEnv(get func(string) string) (Env, error) {
	var problems []error
	str := func(key, def string) string {
		if v := strings.TrimSpace(get(key)); v != "" {
			return v
		}
		return def
	}
	required := func(key string) string {
		v := str(key, "")
		if v == "" {
			problems = append(problems, fmt.Errorf("%s is required", key))
		}
		return v
	}
	id := func(key string) int64 {
		raw := required(key)
		if raw == "" {
			return 0
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n == 0 {
			problems = append(problems, fmt.Errorf("%s: invalid chat id %q", key, raw))
			return 0
		}
		return n
	}

	e := Env{
		BotToken:       required("BOT_TOKEN"),
		AdminID:        id("ADMIN_ID"),
		ChannelID:      id("CHANNEL_ID"),
		GeminiAPIKey:   required("GEMINI_API_KEY"),
		GeminiModel:    str("GEMINI_MODEL", "gemini-2.5-flash"),
		DatabaseDriver: strings.ToLower(str("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:    str("DATABASE_URL", ""),
		SQLitePath:     str("SQLITE_PATH", "./data/animefinder.db"),
		Port:           str("PORT", "8080"),
		ConfigFile:     str("CONFIG_FILE", ""),
	}

	switch e.DatabaseDriver {
	case "postgres", "postgresql", "pgx":
		if e.DatabaseURL == "" {
			problems = append(problems, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case "sqlite", "sqlite3", "memory", "file":
	default:
		problems = append(problems, fmt.Errorf("DATABASE_DRIVER: unknown driver %q", e.DatabaseDriver))
	}
	if p, err := strconv.Atoi(e.Port); err != nil || p <= 0 || p > 65535 {
		problems = append(problems, fmt.Errorf("PORT: invalid port %q", e.Port))
	}

	if len(problems) > 0 {
		return Env{}, errors.Join(problems...)
	}
	return e, nil
}
