package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed job schedule: a cron expression or a fixed interval.
type Schedule struct {
	Cron  string
	Every time.Duration
}

func (s Schedule) IsInterval() bool { return s.Every > 0 }

// Expr returns the form robfig/cron understands.
func (s Schedule) Expr() string {
	if s.IsInterval() {
		return "@every " + s.Every.String()
	}
	return s.Cron
}

// ParseSchedule accepts cron expressions ("*/5 * * * *", "0 */2 * * * *",
// "@hourly", "@every 1h"), Go durations ("55m") and HH:MM intervals ("02:30").
// A "cron:" prefix forces cron; "every:" or "interval:" forces an interval.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, errors.New("schedule is empty")
	}
	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		if rest == "" {
			return Schedule{}, errors.New("cron: expression is empty")
		}
		return Schedule{Cron: rest}, nil
	}
	for _, p := range []string{"every:", "interval:"} {
		if rest, ok := cutPrefixFold(s, p); ok {
			d, err := parseInterval(rest)
			if err != nil {
				return Schedule{}, err
			}
			return Schedule{Every: d}, nil
		}
	}
	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return Schedule{Cron: s}, nil
	}
	d, err := parseInterval(s)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule %q: want cron, HH:MM or a duration like 55m: %w", raw, err)
	}
	return Schedule{Every: d}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

// parseInterval reads HH:MM or a Go duration. The result is positive.
func parseInterval(v string) (time.Duration, error) {
	var d time.Duration
	if h, m, ok := strings.Cut(v, ":"); ok {
		hh, errH := strconv.Atoi(h)
		mm, errM := strconv.Atoi(m)
		if errH != nil || errM != nil || len(m) != 2 || hh < 0 || mm < 0 || mm > 59 {
			return 0, fmt.Errorf("bad HH:MM interval %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return 0, fmt.Errorf("bad interval %q", v)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval %q must be positive", v)
	}
	return d, nil
}
