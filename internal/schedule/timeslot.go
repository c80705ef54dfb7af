package schedule

import (
	"fmt"
	"time"
)

// SlotLayout is the canonical wire and storage form of a timeslot,
// always in the business timezone.
const SlotLayout = "2006-01-02 15:04"

// ParseSlot parses a canonical timeslot string in the given location.
func ParseSlot(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(SlotLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timeslot %q: %w", s, err)
	}
	return t, nil
}

// FormatSlot renders a slot start in canonical form. The instant is
// converted into the grid's location first, so FormatSlot(ParseSlot(s))
// round-trips exactly.
func FormatSlot(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(SlotLayout)
}
