// Package lifecycle derives a sale's status from wall-clock time.
package lifecycle

import (
	"time"

	"github.com/salemap/saled/pkg/model"
)

// Classify maps (now, startsAt, endsAt) to a status. Both bounds are inclusive
// for live; a sale with either bound unknown is always upcoming.
func Classify(now time.Time, startsAt, endsAt *time.Time) model.Status {
	if startsAt == nil || endsAt == nil {
		return model.StatusUpcoming
	}
	if now.Before(*startsAt) {
		return model.StatusUpcoming
	}
	if now.After(*endsAt) {
		return model.StatusEnded
	}
	return model.StatusLive
}

// ClassifySale is Classify applied to a sale's own schedule.
func ClassifySale(now time.Time, s model.Sale) model.Status {
	return Classify(now, s.StartsAt, s.EndsAt)
}
