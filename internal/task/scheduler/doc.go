// Package scheduler runs named maintenance jobs on cron or interval
// schedules in a configurable timezone.
package scheduler
