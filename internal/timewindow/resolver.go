package timewindow

import (
	"errors"
	"fmt"
	"time"

	naturaldate "github.com/tj/go-naturaldate"
)

// DefaultTimezone is used when a request carries no timezone.
const DefaultTimezone = "Asia/Jerusalem"

const isoDate = "2006-01-02"

// inferSpan is how far the missing bound is inferred from a single given one.
const inferSpan = 30 * 24 * time.Hour

// ErrInvalidRange indicates the resolved window has since after until.
var ErrInvalidRange = errors.New("timewindow: since is after until")

// Window is a concrete [since, until] calendar range in a target timezone.
// Both bounds sit on day boundaries: since at 00:00:00, until at 23:59:59.
type Window struct {
	Since    time.Time
	Until    time.Time
	Timezone string
}

// SinceDate returns the lower bound as an ISO calendar date.
func (w Window) SinceDate() string { return w.Since.Format(isoDate) }

// UntilDate returns the upper bound as an ISO calendar date.
func (w Window) UntilDate() string { return w.Until.Format(isoDate) }

// Resolve turns optional user-supplied date bounds into a concrete window
// relative to now. Empty bounds default to [start-of-current-month, now];
// a single bound infers the other at thirty days distance. Bounds may be ISO
// dates or natural-language phrases; anything unparseable is a hard error.
func Resolve(since, until, timezone string, now time.Time) (Window, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Window{}, fmt.Errorf("Unable to parse 'timezone': %s", timezone)
	}
	localNow := now.In(loc)

	var sinceAt, untilAt time.Time
	if since != "" {
		sinceAt, err = parseBound("since", since, localNow, loc)
		if err != nil {
			return Window{}, err
		}
	}
	if until != "" {
		untilAt, err = parseBound("until", until, localNow, loc)
		if err != nil {
			return Window{}, err
		}
	}

	switch {
	case sinceAt.IsZero() && untilAt.IsZero():
		sinceAt = time.Date(localNow.Year(), localNow.Month(), 1, 0, 0, 0, 0, loc)
		untilAt = localNow
	case untilAt.IsZero():
		untilAt = sinceAt.Add(inferSpan)
	case sinceAt.IsZero():
		sinceAt = untilAt.Add(-inferSpan)
	}

	window := Window{
		Since:    startOfDay(sinceAt, loc),
		Until:    endOfDay(untilAt, loc),
		Timezone: timezone,
	}
	if window.Since.After(window.Until) {
		return Window{}, ErrInvalidRange
	}
	return window, nil
}

func parseBound(name, value string, now time.Time, loc *time.Location) (time.Time, error) {
	if parsed, err := time.ParseInLocation(isoDate, value, loc); err == nil {
		return parsed, nil
	}
	parsed, err := naturaldate.Parse(value, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		return time.Time{}, fmt.Errorf("Unable to parse '%s': %s", name, value)
	}
	return parsed.In(loc), nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, loc)
}
