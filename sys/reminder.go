package sys

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// --- Frequency ---

// Frequency sets the minimum gap between two fires of the same reminder.
type Frequency int

const (
	FrequencyDaily Frequency = iota + 1
	FrequencyWeekly
	FrequencyMonthly
)

var frequencyNames = map[Frequency]string{
	FrequencyDaily:   "Daily",
	FrequencyWeekly:  "Weekly",
	FrequencyMonthly: "Monthly",
}

func (f Frequency) String() string {
	if name, ok := frequencyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

func (f Frequency) Valid() bool {
	_, ok := frequencyNames[f]
	return ok
}

// ParseFrequency accepts "daily", "weekly" or "monthly" in any case.
func ParseFrequency(s string) (Frequency, error) {
	needle := strings.TrimSpace(s)
	for f, name := range frequencyNames {
		if strings.EqualFold(name, needle) {
			return f, nil
		}
	}
	return 0, &ValidationError{Field: "frequency", Reason: fmt.Sprintf("%q is not one of Daily, Weekly, Monthly", s)}
}

// --- Weekdays ---

// WeekdaySet is a bitmask of time.Weekday values (bit 0 = Sunday).
type WeekdaySet uint8

// displayOrder lists weekdays Monday first, the way users type them.
var displayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func (s WeekdaySet) With(d time.Weekday) WeekdaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday && s&(1<<uint(d)) != 0
}

func (s WeekdaySet) IsEmpty() bool {
	return s&0x7f == 0
}

// Days returns the members Monday first.
func (s WeekdaySet) Days() []time.Weekday {
	var days []time.Weekday
	for _, d := range displayOrder {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (s WeekdaySet) String() string {
	days := s.Days()
	if len(days) == 7 {
		return "every day"
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, d.String()[:3])
	}
	return strings.Join(parts, ", ")
}

// --- Time of day ---

// TimeOfDay is a wall-clock time without a date, read in the reference timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	t := TimeOfDay{Hour: hour, Minute: minute, Second: second}
	if !t.Valid() {
		return TimeOfDay{}, &ValidationError{Field: "time", Reason: fmt.Sprintf("%02d:%02d:%02d is not a 24-hour time", hour, minute, second)}
	}
	return t, nil
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60 && t.Second >= 0 && t.Second < 60
}

// SecondsOfDay is the offset from midnight.
func (t TimeOfDay) SecondsOfDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// --- Reminder ---

// Reminder is a recurring message posted to a guild channel.
type Reminder struct {
	ID        int64
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Message   string
	TimeOfDay TimeOfDay
	Days      WeekdaySet
	Frequency Frequency
	LastSent  *time.Time
}

// Validate checks the invariants a store relies on.
func (r *Reminder) Validate() error {
	switch {
	case r.GuildID == 0:
		return &ValidationError{Field: "guild", Reason: "missing"}
	case r.ChannelID == 0:
		return &ValidationError{Field: "channel", Reason: "missing"}
	case strings.TrimSpace(r.Message) == "":
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	case !r.TimeOfDay.Valid():
		return &ValidationError{Field: "time", Reason: "not a 24-hour time"}
	case r.Days.IsEmpty():
		return &ValidationError{Field: "days", Reason: "at least one weekday is required"}
	case !r.Frequency.Valid():
		return &ValidationError{Field: "frequency", Reason: "unknown frequency"}
	}
	return nil
}

// IsDue reports whether r should fire at now. All calendar comparisons happen
// in loc, on civil dates, so DST shifts neither skip nor repeat a fire.
func (r *Reminder) IsDue(now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)

	if !r.Days.Has(local.Weekday()) {
		return false
	}

	secs := local.Hour()*3600 + local.Minute()*60 + local.Second()
	if secs < r.TimeOfDay.SecondsOfDay() {
		return false
	}

	if r.LastSent == nil {
		return true
	}

	today := civilDate(local)
	last := civilDate(r.LastSent.In(loc))

	switch r.Frequency {
	case FrequencyDaily:
		return today.After(last)
	case FrequencyWeekly:
		return !today.Before(last.AddDate(0, 0, 7))
	case FrequencyMonthly:
		// The anchor day must match, so a 31st anchor skips shorter months.
		return !today.Before(last.AddDate(0, 1, 0)) && local.Day() == r.LastSent.In(loc).Day()
	default:
		return false
	}
}

// FilterDue keeps the reminders due at now, preserving order.
func FilterDue(reminders []*Reminder, now time.Time, loc *time.Location) []*Reminder {
	due := make([]*Reminder, 0, len(reminders))
	for _, r := range reminders {
		if r.IsDue(now, loc) {
			due = append(due, r)
		}
	}
	return due
}

// civilDate maps t to midnight UTC of its calendar date, so AddDate and
// comparisons work on dates rather than instants.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
