package home

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/keeper/sys"
	"github.com/sho0pi/naturaltime"
)

const reminderCommandTimeout = 10 * time.Second

// ReminderStore is the slice of the store the reminder commands use.
type ReminderStore interface {
	Create(ctx context.Context, r *sys.Reminder) error
	List(ctx context.Context, guildID snowflake.ID) ([]*sys.Reminder, error)
	Delete(ctx context.Context, guildID snowflake.ID, id int64) error
}

type reminderCommand struct {
	ctx    context.Context
	store  ReminderStore
	parser *naturaltime.Parser
	loc    *time.Location
	now    func() time.Time
}

// RegisterReminder wires /reminder and its autocomplete into the loader.
func RegisterReminder(loader *sys.Loader, store ReminderStore, cfg *sys.Config) {
	parser, err := naturaltime.New()
	if err != nil {
		// HH:MM input keeps working without the natural-language fallback.
		sys.LogReminderWarn(sys.MsgReminderNaturalTimeFail, err)
		parser = nil
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	c := &reminderCommand{
		ctx:    loader.Context(),
		store:  store,
		parser: parser,
		loc:    loc,
		now:    time.Now,
	}

	manageGuild := discord.PermissionManageGuild
	loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "reminder",
		Description:              "Manage recurring reminders for this server",
		DefaultMemberPermissions: omit.New(&manageGuild),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "create",
				Description: "Create a recurring reminder",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "time",
						Description: "Time of day, 24-hour HH:MM (e.g. 09:00)",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "days",
						Description: "Comma-separated days (e.g. Mon,Wed,Fri or weekdays)",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "frequency",
						Description: "How often the reminder may fire",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Daily", Value: "daily"},
							{Name: "Weekly", Value: "weekly"},
							{Name: "Monthly", Value: "monthly"},
						},
					},
					discord.ApplicationCommandOptionString{
						Name:        "message",
						Description: "The text to post",
						Required:    true,
						MaxLength:   intPtr(maxReminderMessage),
					},
					discord.ApplicationCommandOptionChannel{
						Name:        "channel",
						Description: "Where to post (default: this channel)",
						Required:    false,
						ChannelTypes: []discord.ChannelType{
							discord.ChannelTypeGuildText,
							discord.ChannelTypeGuildNews,
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List this server's reminders",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "delete",
				Description: "Delete a reminder",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:         "id",
						Description:  "The reminder to delete",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
		},
	}, c.handle)

	loader.RegisterAutocompleteHandler("reminder", c.handleAutocomplete)
}

// handle routes reminder subcommands to their respective handlers.
func (c *reminderCommand) handle(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	subCmd := data.SubCommandName
	if subCmd == nil {
		return
	}

	r := eventReply{event: event}
	guildID := event.GuildID()
	if guildID == nil {
		r.Respond(sys.ErrReminderGuildOnly)
		return
	}

	c.dispatch(r, *subCmd, data, *guildID, event.Channel().ID())
}

// dispatch acknowledges before touching the store, so a slow database cannot
// outlast Discord's acknowledgement window.
func (c *reminderCommand) dispatch(r reply, subCmd string, data discord.SlashCommandInteractionData, guildID, channelID snowflake.ID) {
	if err := r.Ack(); err != nil {
		sys.LogReminder(sys.MsgReminderRespondError, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, reminderCommandTimeout)
	defer cancel()

	switch subCmd {
	case "create":
		c.handleCreate(ctx, r, data, guildID, channelID)
	case "list":
		c.handleList(ctx, r, guildID)
	case "delete":
		c.handleDelete(ctx, r, data, guildID)
	default:
		r.Send(sys.ErrReminderUnknownSub)
	}
}

// reply answers one command interaction. Respond answers in one step; Ack
// defers an ephemeral response that Send later fills in.
type reply interface {
	Respond(content string)
	Ack() error
	Send(content string)
}

type eventReply struct {
	event *events.ApplicationCommandInteractionCreate
}

func (r eventReply) Respond(content string) {
	err := r.event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		).
		SetEphemeral(true).
		Build())
	if err != nil {
		sys.LogReminder(sys.MsgReminderRespondError, err)
	}
}

func (r eventReply) Ack() error {
	return r.event.DeferCreateMessage(true)
}

func (r eventReply) Send(content string) {
	_, err := r.event.Client().Rest.UpdateInteractionResponse(r.event.ApplicationID(), r.event.Token(),
		discord.NewMessageUpdateBuilder().
			SetIsComponentsV2(true).
			AddComponents(
				discord.NewContainer(
					discord.NewTextDisplay(content),
				),
			).
			Build())
	if err != nil {
		sys.LogReminder(sys.MsgReminderRespondError, err)
	}
}

// userFacingError turns validation failures into their reason and anything
// else into fallback.
func userFacingError(err error, fallback string) string {
	var verr *sys.ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf(sys.ErrReminderInvalid, verr.Error())
	}
	return fallback
}
