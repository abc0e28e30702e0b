package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/aura-community/gatekeeper/internal/platform"
)

const avatarSize = "256"

func toRole(guildID string, r *discordgo.Role) platform.Role {
	return platform.Role{ID: r.ID, GuildID: guildID, Name: r.Name, Position: r.Position}
}

func toChannel(ch *discordgo.Channel) platform.Channel {
	return platform.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}
}

func toGuild(g *discordgo.Guild) platform.Guild {
	out := platform.Guild{ID: g.ID, Name: g.Name, MemberCount: g.MemberCount}
	if out.MemberCount == 0 {
		out.MemberCount = g.ApproximateMemberCount
	}
	if g.Icon != "" {
		out.IconURL = g.IconURL(avatarSize)
	}
	return out
}

func toMember(guildID string, m *discordgo.Member) platform.Member {
	out := platform.Member{
		GuildID: guildID,
		RoleIDs: append([]string(nil), m.Roles...),
	}
	if m.User != nil {
		out.UserID = m.User.ID
		out.Username = m.User.Username
		out.Bot = m.User.Bot
		out.AvatarURL = m.User.AvatarURL(avatarSize)
	}
	return out
}

func toEmbed(e *discordgo.MessageEmbed) platform.Embed {
	out := platform.Embed{Title: e.Title, Description: e.Description, Color: e.Color}
	if e.Footer != nil {
		out.Footer = e.Footer.Text
	}
	if e.Thumbnail != nil {
		out.ThumbnailURL = e.Thumbnail.URL
	}
	return out
}

func toMessage(m *discordgo.Message) platform.Message {
	out := platform.Message{ID: m.ID, ChannelID: m.ChannelID, Content: m.Content}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
	}
	for _, e := range m.Embeds {
		if e != nil {
			out.Embeds = append(out.Embeds, toEmbed(e))
		}
	}
	return out
}

func toMessageSend(msg platform.OutgoingMessage) *discordgo.MessageSend {
	send := &discordgo.MessageSend{Content: msg.Content}
	if e := msg.Embed; e != nil {
		embed := &discordgo.MessageEmbed{Title: e.Title, Description: e.Description, Color: e.Color}
		if e.Footer != "" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		if e.ThumbnailURL != "" {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
		}
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	return send
}
