package schedule

import (
	"fmt"
	"time"

	"nobat/internal/config"
)

// Slot is a bookable interval offered for display.
type Slot struct {
	Value string    `json:"value"`
	Start time.Time `json:"-"`
}

// Grid describes the bookable calendar: a fixed-duration step walked from
// the daily open anchor, bounded by the close time, over a rolling horizon.
type Grid struct {
	Location    *time.Location
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	Duration    time.Duration
	HorizonDays int
	RestDays    map[time.Weekday]bool
}

// NewGrid builds a Grid from config. Config values are validated at load
// time; errors here mean the timezone database is missing the zone.
func NewGrid(cfg config.ScheduleConfig) (Grid, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Grid{}, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	openH, openM, err := config.ParseClock(cfg.Open)
	if err != nil {
		return Grid{}, err
	}
	closeH, closeM, err := config.ParseClock(cfg.Close)
	if err != nil {
		return Grid{}, err
	}

	rest := make(map[time.Weekday]bool, len(cfg.RestDays))
	for _, name := range cfg.RestDays {
		day, err := config.ParseWeekday(name)
		if err != nil {
			return Grid{}, err
		}
		rest[day] = true
	}

	return Grid{
		Location:    loc,
		OpenHour:    openH,
		OpenMinute:  openM,
		CloseHour:   closeH,
		CloseMinute: closeM,
		Duration:    time.Duration(cfg.SlotMinutes) * time.Minute,
		HorizonDays: cfg.HorizonDays,
		RestDays:    rest,
	}, nil
}

// Generate walks the horizon and returns the available slots in
// chronological order. Rest weekdays and closure dates are skipped whole;
// on the current day, slots whose start is at or before now are skipped;
// slots present in the booked set are filtered out. Pure: the booked set
// is a snapshot, write-time conflicts are resolved by the ledger.
func (g Grid) Generate(now time.Time, booked map[string]struct{}, closures map[string]struct{}) []Slot {
	now = now.In(g.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.Location)

	var slots []Slot
	for offset := 0; offset < g.HorizonDays; offset++ {
		day := today.AddDate(0, 0, offset)
		if g.RestDays[day.Weekday()] {
			continue
		}
		if _, closed := closures[day.Format("2006-01-02")]; closed {
			continue
		}

		start := g.openAt(day)
		dayEnd := g.closeAt(day)
		for !start.Add(g.Duration).After(dayEnd) {
			if offset == 0 && !start.After(now) {
				start = start.Add(g.Duration)
				continue
			}
			value := FormatSlot(start, g.Location)
			if _, taken := booked[value]; !taken {
				slots = append(slots, Slot{Value: value, Start: start})
			}
			start = start.Add(g.Duration)
		}
	}
	return slots
}

// InGrid reports whether t is a valid slot start: aligned to the open
// anchor in duration steps, finishing by close, and not on a rest day.
func (g Grid) InGrid(t time.Time) bool {
	t = t.In(g.Location)
	if g.RestDays[t.Weekday()] {
		return false
	}

	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, g.Location)
	offset := t.Sub(g.openAt(day))
	if offset < 0 || offset%g.Duration != 0 {
		return false
	}
	return !t.Add(g.Duration).After(g.closeAt(day))
}

func (g Grid) openAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), g.OpenHour, g.OpenMinute, 0, 0, g.Location)
}

func (g Grid) closeAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), g.CloseHour, g.CloseMinute, 0, 0, g.Location)
}
