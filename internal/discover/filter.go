// Package discover narrows the public sale list by time.
package discover

import (
	"fmt"
	"strings"
	"time"

	"github.com/salemap/saled/pkg/model"
)

// Filter selects which sales the listing shows.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterToday   Filter = "today"
	FilterWeekend Filter = "weekend"
)

// ParseFilter accepts "", all, today or weekend (case-insensitive).
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterToday, FilterWeekend:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

// Apply drops ended sales and then keeps those whose start falls inside the
// filter's window. Day boundaries are taken in now's location.
func Apply(sales []model.Sale, f Filter, now time.Time) []model.Sale {
	out := make([]model.Sale, 0, len(sales))
	for _, s := range sales {
		if s.Status == model.StatusEnded {
			continue
		}
		if f != FilterAll && !startsWithin(s, f, now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func startsWithin(s model.Sale, f Filter, now time.Time) bool {
	if s.StartsAt == nil {
		return false
	}
	var from, to time.Time
	switch f {
	case FilterToday:
		from, to = Today(now)
	case FilterWeekend:
		from, to = Weekend(now)
	default:
		return true
	}
	start := s.StartsAt.In(now.Location())
	return !start.Before(from) && start.Before(to)
}

// Today returns [start of now's day, start of the next day).
func Today(now time.Time) (time.Time, time.Time) {
	from := startOfDay(now)
	return from, from.AddDate(0, 0, 1)
}

// Weekend returns [Saturday 00:00, Monday 00:00) of the current weekend when
// now is on a Saturday or Sunday, otherwise of the upcoming one.
func Weekend(now time.Time) (time.Time, time.Time) {
	day := startOfDay(now)
	var offset int
	switch wd := day.Weekday(); wd {
	case time.Saturday:
		offset = 0
	case time.Sunday:
		offset = -1
	default:
		offset = int(time.Saturday - wd)
	}
	sat := day.AddDate(0, 0, offset)
	return sat, sat.AddDate(0, 0, 2)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
