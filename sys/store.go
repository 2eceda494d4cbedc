package sys

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/datatypes"
)

// ReminderStore is the persistence contract shared by the command layer and
// the scheduler. Every method is a single statement against the backend.
type ReminderStore interface {
	Create(ctx context.Context, r *Reminder) error
	List(ctx context.Context, guildID snowflake.ID) ([]*Reminder, error)
	Delete(ctx context.Context, guildID snowflake.ID, id int64) error
	QueryDue(ctx context.Context, now time.Time) ([]*Reminder, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	Count(ctx context.Context) (int, error)

	GetBotConfig(ctx context.Context, key string) (string, error)
	SetBotConfig(ctx context.Context, key, value string) error

	Close() error
}

// OpenStore connects to Postgres when DATABASE_URL is set and to the SQLite
// file at DatabasePath otherwise.
func OpenStore(ctx context.Context, cfg *Config) (ReminderStore, error) {
	if cfg.DatabaseURL != "" {
		return OpenPostgres(ctx, cfg.DatabaseURL, cfg.Location)
	}
	return OpenSQLite(ctx, cfg.DatabasePath, cfg.Location)
}

// --- Storage encoding ---
// Domain enums are mapped to column values only here.

var frequencyTags = map[Frequency]string{
	FrequencyDaily:   "daily",
	FrequencyWeekly:  "weekly",
	FrequencyMonthly: "monthly",
}

func frequencyTag(f Frequency) (string, error) {
	tag, ok := frequencyTags[f]
	if !ok {
		return "", fmt.Errorf("unknown frequency %d", int(f))
	}
	return tag, nil
}

func parseFrequencyTag(tag string) (Frequency, error) {
	for f, t := range frequencyTags {
		if t == tag {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown frequency tag %q", tag)
}

func encodeDays(s WeekdaySet) datatypes.JSONSlice[int] {
	days := make(datatypes.JSONSlice[int], 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			days = append(days, int(d))
		}
	}
	return days
}

func decodeDays(days datatypes.JSONSlice[int]) (WeekdaySet, error) {
	var s WeekdaySet
	for _, d := range days {
		if d < 0 || d > 6 {
			return 0, fmt.Errorf("weekday %d out of range", d)
		}
		s = s.With(time.Weekday(d))
	}
	if s.IsEmpty() {
		return 0, fmt.Errorf("empty weekday set")
	}
	return s, nil
}

func encodeTime(t TimeOfDay) datatypes.Time {
	return datatypes.NewTime(t.Hour, t.Minute, t.Second, 0)
}

func decodeTime(t datatypes.Time) TimeOfDay {
	d := time.Duration(t)
	return TimeOfDay{
		Hour:   int(d / time.Hour),
		Minute: int(d % time.Hour / time.Minute),
		Second: int(d % time.Minute / time.Second),
	}
}
