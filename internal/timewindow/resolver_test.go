package timewindow

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2026, 8, 18, 14, 30, 0, 0, loc)
}

func TestResolveDefaultsToCurrentMonth(t *testing.T) {
	now := fixedNow(t)

	window, err := Resolve("", "", "", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := window.SinceDate(); got != "2026-08-01" {
		t.Fatalf("expected month start, got %s", got)
	}
	if got := window.UntilDate(); got != "2026-08-18" {
		t.Fatalf("expected today, got %s", got)
	}
	if window.Timezone != DefaultTimezone {
		t.Fatalf("expected default timezone, got %s", window.Timezone)
	}
	if window.Since.Hour() != 0 || window.Until.Hour() != 23 {
		t.Fatalf("bounds not on day boundaries: %v %v", window.Since, window.Until)
	}
}

func TestResolveInfersMissingBound(t *testing.T) {
	now := fixedNow(t)

	cases := []struct {
		name        string
		since       string
		until       string
		wantSince   string
		wantUntil   string
	}{
		{name: "since only", since: "2026-07-01", wantSince: "2026-07-01", wantUntil: "2026-07-31"},
		{name: "until only", until: "2026-07-31", wantSince: "2026-07-01", wantUntil: "2026-07-31"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			window, err := Resolve(tc.since, tc.until, "", now)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if window.SinceDate() != tc.wantSince || window.UntilDate() != tc.wantUntil {
				t.Fatalf("got [%s, %s], want [%s, %s]", window.SinceDate(), window.UntilDate(), tc.wantSince, tc.wantUntil)
			}
		})
	}
}

func TestResolveIdempotentForExplicitISO(t *testing.T) {
	now := fixedNow(t)

	first, err := Resolve("2026-06-01", "2026-06-30", "UTC", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := Resolve("2026-06-01", "2026-06-30", "UTC", now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !first.Since.Equal(second.Since) || !first.Until.Equal(second.Until) || first.Timezone != second.Timezone {
		t.Fatalf("explicit ISO inputs not idempotent: %+v vs %+v", first, second)
	}
}

func TestResolveRejectsInvertedRange(t *testing.T) {
	now := fixedNow(t)

	_, err := Resolve("2026-08-10", "2026-08-01", "", now)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestResolveRejectsUnparseableBound(t *testing.T) {
	now := fixedNow(t)

	_, err := Resolve("not a date at all %%%", "", "", now)
	if err == nil {
		t.Fatal("expected error for unparseable since")
	}
	if !strings.Contains(err.Error(), "Unable to parse 'since'") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestResolveNaturalLanguageBound(t *testing.T) {
	now := fixedNow(t)

	window, err := Resolve("yesterday", "", "", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if window.SinceDate() != "2026-08-17" {
		t.Fatalf("expected yesterday, got %s", window.SinceDate())
	}
}
