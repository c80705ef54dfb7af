package schedule

import (
	"time"

	"nobat/internal/models"
)

// Status derives an appointment's display status from its start and the
// slot duration: passed if the interval ended before now, ongoing while
// now falls in [start, end), future otherwise.
func Status(start time.Time, duration time.Duration, now time.Time) string {
	end := start.Add(duration)
	switch {
	case end.Before(now):
		return models.StatusPassed
	case !start.After(now) && now.Before(end):
		return models.StatusOngoing
	default:
		return models.StatusFuture
	}
}
