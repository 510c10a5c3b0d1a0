package cache

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is how often a user's scheduled refresh runs.
type Frequency string

const (
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
	Custom Frequency = "custom"
)

// Cadence is the user's reporting schedule, read-only input from user settings.
type Cadence struct {
	SchedulerEnabled bool           `json:"scheduler_enabled" yaml:"scheduler_enabled"`
	Frequency        Frequency      `json:"frequency" yaml:"frequency"`
	Days             []time.Weekday `json:"days,omitempty" yaml:"-"`
}

// DefaultMaxAgeHours applies when no schedule is configured.
const DefaultMaxAgeHours = 168

// MaxAgeHours maps a cadence to how long its snapshots stay fresh.
// The value outlives the gap between scheduled runs so the scheduler,
// not an ad-hoc request, normally does the refresh.
func MaxAgeHours(c Cadence) int {
	if !c.SchedulerEnabled {
		return DefaultMaxAgeHours
	}

	switch c.Frequency {
	case Daily:
		return 36
	case Weekly:
		return 192
	case Custom:
		n := distinctDays(c.Days)
		switch {
		case n >= 5:
			return 36
		case n >= 3:
			return 72
		case n == 2:
			return 96
		default:
			return 192
		}
	}
	return DefaultMaxAgeHours
}

// MaxAge is MaxAgeHours as a duration.
func MaxAge(c Cadence) time.Duration {
	return time.Duration(MaxAgeHours(c)) * time.Hour
}

func distinctDays(days []time.Weekday) int {
	seen := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		seen[d] = true
	}
	return len(seen)
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays reads day names such as "mon" or "Friday".
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
		days = append(days, d)
	}
	return days, nil
}
