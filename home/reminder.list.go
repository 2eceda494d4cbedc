package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/keeper/sys"
)

// maxListLength keeps the reply under Discord's text display limit.
const maxListLength = 3800

// formatReminderList renders reminders in store order, dropping the tail
// once the reply would grow past maxListLength.
func formatReminderList(reminders []*sys.Reminder, now time.Time) string {
	if len(reminders) == 0 {
		return sys.MsgReminderNoActive
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(sys.MsgReminderListHeader, len(reminders)))

	for i, r := range reminders {
		lastSent := sys.MsgReminderNeverSent
		if r.LastSent != nil {
			lastSent = fmt.Sprintf(sys.MsgReminderLastSentAgo, sys.FormatRelativeTime(*r.LastSent, now))
		}

		item := fmt.Sprintf(sys.MsgReminderListItem,
			r.ID, r.ChannelID, r.TimeOfDay, r.Days, r.Frequency,
			sys.Truncate(strings.ReplaceAll(r.Message, "\n", " "), 100), lastSent)

		if sb.Len()+len(item) > maxListLength {
			sb.WriteString(fmt.Sprintf(sys.MsgReminderListMore, len(reminders)-i))
			break
		}
		sb.WriteString(item)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (c *reminderCommand) handleList(ctx context.Context, rep reply, guildID snowflake.ID) {
	reminders, err := c.store.List(ctx, guildID)
	if err != nil {
		sys.LogReminderWarn(sys.MsgReminderFailedToQuery, err)
		rep.Send(sys.ErrReminderFetchFailed)
		return
	}

	rep.Send(formatReminderList(reminders, c.now()))
}
