// Package platform holds the state primitives shared by the gatekeeper components
// and the narrow Gateway interface they consume. Nothing here talks to Discord
// directly; see internal/discord for the concrete adapter.
package platform

import "slices"

// Guild is a single community (tenant). All gating state is scoped to it.
type Guild struct {
	ID          string
	Name        string
	IconURL     string
	MemberCount int
}

// Role is a guild role, identified for gating purposes by its name.
type Role struct {
	ID       string
	GuildID  string
	Name     string
	Position int
}

// Channel is a guild text channel.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Mention returns the clickable channel reference.
func (c Channel) Mention() string {
	return "<#" + c.ID + ">"
}

// Embed is the rich body of a message. Only the fields the bot renders are modeled.
type Embed struct {
	Title        string
	Description  string
	Color        int
	Footer       string
	ThumbnailURL string
}

// Message is a posted message as read back from a channel.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	Embeds    []Embed
}

// OutgoingMessage is what callers hand to SendMessage / SendDirectMessage.
type OutgoingMessage struct {
	Content string
	Embed   *Embed
}

// Member is a user's membership in one guild.
type Member struct {
	GuildID   string
	UserID    string
	Username  string
	Bot       bool
	RoleIDs   []string
	AvatarURL string
}

// Mention returns the clickable user reference.
func (m *Member) Mention() string {
	return "<@" + m.UserID + ">"
}

// HasRole reports whether the member currently holds roleID.
func (m *Member) HasRole(roleID string) bool {
	if m == nil || roleID == "" {
		return false
	}
	return slices.Contains(m.RoleIDs, roleID)
}
