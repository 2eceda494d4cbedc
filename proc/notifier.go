package proc

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/keeper/sys"
	"golang.org/x/time/rate"
)

// messageCreator is the single REST call the notifier needs; rest.Rest satisfies it.
type messageCreator interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

// DiscordNotifier posts reminder text to guild channels.
type DiscordNotifier struct {
	rest    messageCreator
	limiter *rate.Limiter
}

func NewDiscordNotifier(r messageCreator) *DiscordNotifier {
	return &DiscordNotifier{
		rest:    r,
		limiter: rate.NewLimiter(rate.Limit(4), 10),
	}
}

// Deliver sends text verbatim. Only user and role mentions are resolved, so a
// reminder cannot ping @everyone.
func (n *DiscordNotifier) Deliver(ctx context.Context, channelID snowflake.ID, text string) error {
	if channelID == 0 {
		return &sys.DeliveryError{ChannelID: channelID, Err: fmt.Errorf("missing channel")}
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return &sys.DeliveryError{ChannelID: channelID, Err: err}
	}

	msg := discord.MessageCreate{
		Content: text,
		AllowedMentions: &discord.AllowedMentions{
			Parse: []discord.AllowedMentionType{
				discord.AllowedMentionTypeUsers,
				discord.AllowedMentionTypeRoles,
			},
		},
	}
	if _, err := n.rest.CreateMessage(channelID, msg, rest.WithCtx(ctx)); err != nil {
		return &sys.DeliveryError{ChannelID: channelID, Err: err}
	}
	return nil
}
