// Package schedule holds the time-driven decisions of a run: the content mode
// of the day, the credential picked for the day, and the posting window.
// Everything takes the time as an argument so tests can drive it with a fake clock.
package schedule

import (
	"time"

	"github.com/linkedin-autopost/internal/models"
)

// ModeFor returns the content mode for the weekday of t. Sunday is the rest day.
func ModeFor(t time.Time) models.ContentMode {
	switch t.Weekday() {
	case time.Monday, time.Thursday:
		return models.ModeArticle
	case time.Tuesday, time.Friday:
		return models.ModeMeme
	case time.Wednesday:
		return models.ModeShort
	case time.Saturday:
		return models.ModeFreestyle
	default:
		return models.ModeNone
	}
}

// PickKey selects the credential for the day: keys[dayOfYear % len(keys)].
// It returns false when keys is empty.
func PickKey(t time.Time, keys []string) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}
	return keys[t.YearDay()%len(keys)], true
}

// AttemptOrder returns every key exactly once, starting with the day's pick
// and continuing in list order with wrap-around.
func AttemptOrder(t time.Time, keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	start := t.YearDay() % len(keys)
	order := make([]string, 0, len(keys))
	order = append(order, keys[start:]...)
	order = append(order, keys[:start]...)
	return order
}

// Window is the daily posting window: approvals are accepted from Hour:00
// until Hour:00 + Grace, inclusive.
type Window struct {
	Hour  int
	Grace time.Duration
}

// Target returns today's posting time in now's location
func (w Window) Target(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, w.Hour, 0, 0, 0, now.Location())
}

// Deadline returns the end of today's approval window
func (w Window) Deadline(now time.Time) time.Time {
	return w.Target(now).Add(w.Grace)
}

// TooEarly reports whether a run started at now precedes the earliest allowed hour
func TooEarly(now time.Time, earliestHour int) bool {
	return now.Hour() < earliestHour
}
