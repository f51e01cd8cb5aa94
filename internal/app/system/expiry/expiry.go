// internal/app/system/expiry/expiry.go

// Package expiry classifies membership expiry timestamps into status
// buckets. Classification is pure: the caller supplies the clock, the
// threshold, and the timezone, so results are deterministic and buckets are
// never persisted.
package expiry

import (
	"math"
	"time"
)

// Bucket is the derived status of a membership record.
type Bucket string

const (
	Expired Bucket = "expired"
	Today   Bucket = "today"
	Soon    Bucket = "soon"
	Active  Bucket = "active"
)

// DaysUntil returns the whole-day distance from now to expiry. Both times
// are truncated to midnight in loc before subtracting, so partial-day drift
// never flips a bucket mid-day.
func DaysUntil(expiry, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	e := midnight(expiry.In(loc))
	n := midnight(now.In(loc))
	// Round instead of truncate: DST transitions make some calendar days
	// 23 or 25 hours long.
	return int(math.Round(e.Sub(n).Hours() / 24))
}

// Classify maps an expiry against now and the soon-threshold:
// days < 0 is expired, 0 is today, (0, thresholdDays] is soon, and
// everything beyond is active.
func Classify(expiry, now time.Time, thresholdDays int, loc *time.Location) Bucket {
	days := DaysUntil(expiry, now, loc)
	switch {
	case days < 0:
		return Expired
	case days == 0:
		return Today
	case days <= thresholdDays:
		return Soon
	default:
		return Active
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
