package home

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/keeper/sys"
)

type statusCommand struct {
	ctx   context.Context
	store sys.ConfigStore
	cfg   *sys.Config
}

// RegisterStatus wires /status, which toggles the presence rotator.
func RegisterStatus(loader *sys.Loader, store sys.ConfigStore, cfg *sys.Config) {
	c := &statusCommand{ctx: loader.Context(), store: store, cfg: cfg}
	adminPerm := discord.PermissionAdministrator

	loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "status",
		Description:              "Configure bot status visibility (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionBool{
				Name:        "visible",
				Description: "Enable or disable status rotation",
				Required:    true,
			},
		},
	}, c.handle)
}

// allowed gates the command on OWNER_IDS when any are configured.
func (c *statusCommand) allowed(event *events.ApplicationCommandInteractionCreate) bool {
	if len(c.cfg.OwnerIDs) == 0 {
		return true
	}
	return c.cfg.IsOwner(event.User().ID)
}

// setVisible persists the flag the rotator reads before every rotation.
func (c *statusCommand) setVisible(ctx context.Context, visible bool) (string, error) {
	value, content := "false", sys.MsgStatusDisabled
	if visible {
		value, content = "true", sys.MsgStatusEnabled
	}
	if err := c.store.SetBotConfig(ctx, "status_visible", value); err != nil {
		return sys.ErrStatusSaveFailed, err
	}
	return content, nil
}

func (c *statusCommand) handle(event *events.ApplicationCommandInteractionCreate) {
	r := eventReply{event: event}
	if !c.allowed(event) {
		r.Respond(sys.ErrStatusOwnerOnly)
		return
	}
	c.apply(r, event.SlashCommandInteractionData().Bool("visible"))
}

func (c *statusCommand) apply(r reply, visible bool) {
	if err := r.Ack(); err != nil {
		sys.LogDebug(sys.MsgStatusCmdFail, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, reminderCommandTimeout)
	defer cancel()

	content, err := c.setVisible(ctx, visible)
	if err != nil {
		sys.LogWarn(sys.MsgStatusCmdFail, err)
	}
	r.Send(content)
}
