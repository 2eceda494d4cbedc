package home

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/keeper/sys"
)

// maxAutocompleteChoices is Discord's cap on autocomplete results.
const maxAutocompleteChoices = 25

// handleDelete always confirms: deleting an id that is gone, or that belongs
// to another server, is not an error.
func (c *reminderCommand) handleDelete(ctx context.Context, rep reply, data discord.SlashCommandInteractionData, guildID snowflake.ID) {
	id := int64(data.Int("id"))

	if err := c.store.Delete(ctx, guildID, id); err != nil {
		sys.LogReminderWarn(sys.MsgReminderFailedToDelete, id, err)
		rep.Send(sys.ErrReminderDeleteFail)
		return
	}

	rep.Send(fmt.Sprintf(sys.MsgReminderDeleted, id))
}

// reminderChoices filters reminders by the typed text, matching either the id
// or the message.
func reminderChoices(reminders []*sys.Reminder, focused string) []discord.AutocompleteChoice {
	focused = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(focused, "#")))

	choices := []discord.AutocompleteChoice{}
	for _, r := range reminders {
		idStr := strconv.FormatInt(r.ID, 10)
		label := fmt.Sprintf(sys.MsgReminderChoice, r.ID, r.TimeOfDay, r.Days, sys.Truncate(strings.ReplaceAll(r.Message, "\n", " "), 60))
		if focused == "" || strings.HasPrefix(idStr, focused) || strings.Contains(strings.ToLower(label), focused) {
			choices = append(choices, discord.AutocompleteChoiceInt{
				Name:  sys.Truncate(label, 100),
				Value: int(r.ID),
			})
		}
		if len(choices) >= maxAutocompleteChoices {
			break
		}
	}
	return choices
}

func (c *reminderCommand) handleAutocomplete(event *events.AutocompleteInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	// Integer options arrive as raw text while focused.
	focused := ""
	if opt := event.Data.Focused(); opt.Value != nil {
		focused = strings.Trim(string(opt.Value), `"`)
	}

	ctx, cancel := context.WithTimeout(c.ctx, reminderCommandTimeout)
	defer cancel()

	reminders, err := c.store.List(ctx, *guildID)
	if err != nil {
		sys.LogReminderWarn(sys.MsgReminderAutocompleteFail, err)
		_ = event.AutocompleteResult(nil)
		return
	}

	if err := event.AutocompleteResult(reminderChoices(reminders, focused)); err != nil {
		sys.LogReminder(sys.MsgReminderRespondError, err)
	}
}
