// Package scheduler registers named triggers (cron, interval or daily
// HH:MM) on robfig/cron in a fixed timezone. A trigger that is still
// running when it fires again is skipped.
package scheduler
