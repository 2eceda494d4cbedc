package home

import (
	"fmt"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/keeper/sys"
)

// RegisterPing wires /ping and its refresh button into the loader.
func RegisterPing(loader *sys.Loader) {
	manageGuild := discord.PermissionManageGuild

	loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "ping",
		Description:              "Check bot latency",
		DefaultMemberPermissions: omit.New(&manageGuild),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionBool{
				Name:        "ephemeral",
				Description: "Whether the message should be ephemeral (default: true)",
				Required:    false,
			},
		},
	}, handlePing)

	loader.RegisterComponentHandler("ping_refresh", handlePingRefresh)
}

func formatLatency(d time.Duration) string {
	if d <= 0 {
		return sys.MsgPingUnknown
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func pingContent(client *bot.Client, interactionID snowflake.ID) string {
	var gatewayLatency time.Duration
	if client != nil && client.Gateway != nil {
		gatewayLatency = client.Gateway.Latency()
	}
	restLatency := time.Since(interactionID.Time())
	return fmt.Sprintf(sys.MsgPingResponse, formatLatency(gatewayLatency), formatLatency(restLatency))
}

func pingComponents(content string) discord.ContainerComponent {
	return discord.NewContainer(
		discord.NewTextDisplay(content),
		discord.NewActionRow(
			discord.NewSuccessButton("🔄 Refresh", "ping_refresh"),
		),
	)
}

func handlePing(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	ephemeral := true
	if eph, ok := data.OptBool("ephemeral"); ok {
		ephemeral = eph
	}

	builder := discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		SetEphemeral(ephemeral).
		AddComponents(pingComponents(pingContent(event.Client(), event.ID())))

	if err := event.CreateMessage(builder.Build()); err != nil {
		sys.LogDebug("Failed to send ping: %v", err)
	}
}

func handlePingRefresh(event *events.ComponentInteractionCreate) {
	updateBuilder := discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		AddComponents(pingComponents(pingContent(event.Client(), event.ID())))

	if err := event.UpdateMessage(updateBuilder.Build()); err != nil {
		sys.LogDebug("Failed to refresh ping: %v", err)
	}
}
