package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/keeper/sys"
)

const userInfoCommandName = "User Information"

// maxListedRoles keeps the role line readable on large servers.
const maxListedRoles = 20

// RegisterUserInfo wires the user context menu that shows account details.
func RegisterUserInfo(loader *sys.Loader) {
	loader.RegisterCommand(discord.UserCommandCreate{
		Name: userInfoCommandName,
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
	}, handleUserInfo)
}

func handleUserInfo(event *events.ApplicationCommandInteractionCreate) {
	r := eventReply{event: event}
	data := event.UserCommandInteractionData()

	user, ok := data.Resolved.Users[data.TargetID()]
	if !ok {
		r.Respond(sys.ErrUserInfoNotFound)
		return
	}

	var member *discord.Member
	if m, ok := data.Resolved.Members[data.TargetID()]; ok {
		member = &m.Member
	} else if guildID := event.GuildID(); guildID != nil {
		if m, ok := event.Client().Caches.Member(*guildID, user.ID); ok {
			member = &m
		}
	}

	r.Respond(formatUserInfo(user, member))
}

// formatUserInfo renders a user and, when known, their membership in the
// current server. Timestamps use Discord's client-side formatting.
func formatUserInfo(user discord.User, member *discord.Member) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(sys.MsgUserInfoTitle, user.EffectiveName()))
	sb.WriteString(fmt.Sprintf(sys.MsgUserInfoID, user.ID))
	if user.Bot {
		sb.WriteString(sys.MsgUserInfoBot)
	}

	created := user.ID.Time().Unix()
	sb.WriteString(fmt.Sprintf(sys.MsgUserInfoCreated, created, created))

	if member != nil {
		if member.Nick != nil && *member.Nick != "" {
			sb.WriteString(fmt.Sprintf(sys.MsgUserInfoNick, *member.Nick))
		}
		if member.JoinedAt != nil {
			joined := member.JoinedAt.Unix()
			sb.WriteString(fmt.Sprintf(sys.MsgUserInfoJoined, joined, joined))
		}
		sb.WriteString(fmt.Sprintf(sys.MsgUserInfoRoles, len(member.RoleIDs), formatRoles(member)))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func formatRoles(member *discord.Member) string {
	if len(member.RoleIDs) == 0 {
		return sys.MsgUserInfoNoRoles
	}
	mentions := make([]string, 0, min(len(member.RoleIDs), maxListedRoles))
	for i, id := range member.RoleIDs {
		if i == maxListedRoles {
			mentions = append(mentions, fmt.Sprintf("+%d", len(member.RoleIDs)-maxListedRoles))
			break
		}
		mentions = append(mentions, discord.RoleMention(id))
	}
	return strings.Join(mentions, " ")
}
