package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/keeper/sys"
)

// RegisterHelp wires /help. The list is read from the loader when the command
// runs, so commands registered later still show up.
func RegisterHelp(loader *sys.Loader) {
	loader.RegisterCommand(discord.SlashCommandCreate{
		Name:        "help",
		Description: "List the bot's commands",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
			discord.InteractionContextTypeBotDM,
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		eventReply{event: event}.Respond(formatHelp(loader.Commands()))
	})
}

func formatHelp(cmds []discord.ApplicationCommandCreate) string {
	var sb strings.Builder
	sb.WriteString(sys.MsgHelpHeader)

	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case discord.SlashCommandCreate:
			sb.WriteString(fmt.Sprintf(sys.MsgHelpCommand, c.Name, c.Description))
			for _, opt := range c.Options {
				if sub, ok := opt.(discord.ApplicationCommandOptionSubCommand); ok {
					sb.WriteString(fmt.Sprintf(sys.MsgHelpSub, c.Name, sub.Name, sub.Description))
				}
			}
		case discord.UserCommandCreate:
			sb.WriteString(fmt.Sprintf(sys.MsgHelpUserMenu, c.Name))
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
