package home

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/keeper/sys"
	"github.com/sho0pi/naturaltime"
)

const maxReminderMessage = 2000

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

var dayGroups = map[string][]time.Weekday{
	"weekdays": {time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	"weekends": {time.Saturday, time.Sunday},
	"everyday": {time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
}

func intPtr(i int) *int {
	return &i
}

// parseTimeOfDay accepts 24-hour HH:MM. When parser is set, natural forms
// such as "9am" or "noon" are resolved against now and only the clock part
// is kept.
func parseTimeOfDay(input string, parser *naturaltime.Parser, now time.Time) (sys.TimeOfDay, error) {
	input = strings.TrimSpace(input)
	if m := clockPattern.FindStringSubmatch(input); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return sys.NewTimeOfDay(hour, minute, 0)
	}

	if parser != nil && input != "" {
		if result, err := parser.ParseDate(input, now); err == nil && result != nil {
			local := result.In(now.Location())
			return sys.NewTimeOfDay(local.Hour(), local.Minute(), 0)
		}
	}

	return sys.TimeOfDay{}, &sys.ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not a time like 09:00", input)}
}

// parseDays reads a comma or space separated list of weekday names.
// Duplicates collapse; an empty result is an error.
func parseDays(input string) (sys.WeekdaySet, error) {
	fields := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return r == ',' || r == ' ' || r == ';' || r == '/'
	})

	var set sys.WeekdaySet
	for _, f := range fields {
		if d, ok := dayNames[f]; ok {
			set = set.With(d)
			continue
		}
		if group, ok := dayGroups[f]; ok {
			for _, d := range group {
				set = set.With(d)
			}
			continue
		}
		return 0, &sys.ValidationError{Field: "days", Reason: fmt.Sprintf("unknown day %q, use Mon..Sun", f)}
	}

	if set.IsEmpty() {
		return 0, &sys.ValidationError{Field: "days", Reason: "at least one day is required"}
	}
	return set, nil
}

// reminderInput is the raw option set of /reminder create.
type reminderInput struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Time      string
	Days      string
	Frequency string
	Message   string
}

// buildReminder validates the raw input into a Reminder ready for the store.
func buildReminder(in reminderInput, parser *naturaltime.Parser, now time.Time) (*sys.Reminder, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, &sys.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if len([]rune(message)) > maxReminderMessage {
		return nil, &sys.ValidationError{Field: "message", Reason: fmt.Sprintf("longer than %d characters", maxReminderMessage)}
	}

	tod, err := parseTimeOfDay(in.Time, parser, now)
	if err != nil {
		return nil, err
	}
	days, err := parseDays(in.Days)
	if err != nil {
		return nil, err
	}
	freq, err := sys.ParseFrequency(in.Frequency)
	if err != nil {
		return nil, err
	}

	r := &sys.Reminder{
		GuildID:   in.GuildID,
		ChannelID: in.ChannelID,
		Message:   message,
		TimeOfDay: tod,
		Days:      days,
		Frequency: freq,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *reminderCommand) handleCreate(ctx context.Context, rep reply, data discord.SlashCommandInteractionData, guildID, channelID snowflake.ID) {
	if id, ok := data.OptSnowflake("channel"); ok {
		channelID = id
	}

	in := reminderInput{
		GuildID:   guildID,
		ChannelID: channelID,
		Time:      data.String("time"),
		Days:      data.String("days"),
		Frequency: data.String("frequency"),
		Message:   data.String("message"),
	}

	r, err := buildReminder(in, c.parser, c.now().In(c.loc))
	if err != nil {
		rep.Send(userFacingError(err, sys.ErrReminderSaveFailed))
		return
	}

	if err := c.store.Create(ctx, r); err != nil {
		sys.LogReminderWarn(sys.MsgReminderFailedToSave, err)
		rep.Send(userFacingError(err, sys.ErrReminderSaveFailed))
		return
	}

	rep.Send(fmt.Sprintf(sys.MsgReminderCreated, r.ID, r.ChannelID, r.TimeOfDay, r.Days, r.Frequency))
}
