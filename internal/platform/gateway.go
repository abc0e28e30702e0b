package platform

import "context"

// RoleAPI covers guild role reads and member role mutations. AddRole and
// RemoveRole must be idempotent: re-adding a held role or removing an absent
// one is a no-op, not an error.
type RoleAPI interface {
	Roles(ctx context.Context, guildID string) ([]Role, error)
	CreateRole(ctx context.Context, guildID, name string) (*Role, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

// ChannelAPI resolves and creates guild text channels.
type ChannelAPI interface {
	GetChannel(ctx context.Context, channelID string) (*Channel, error)
	// FindChannelByName returns ErrNotFound when the guild has no such channel.
	FindChannelByName(ctx context.Context, guildID, name string) (*Channel, error)
	// CreateChannel creates a text channel. readOnly denies @everyone sending.
	CreateChannel(ctx context.Context, guildID, name string, readOnly bool) (*Channel, error)
}

// MessageAPI posts and reads channel messages and reactions.
type MessageAPI interface {
	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (*Message, error)
	// FetchRecentMessages returns up to limit messages, newest first.
	FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
}

// MemberAPI resolves guild members and reaches users directly.
type MemberAPI interface {
	Guild(ctx context.Context, guildID string) (*Guild, error)
	// CachedMember never performs I/O.
	CachedMember(guildID, userID string) (*Member, bool)
	FetchMember(ctx context.Context, guildID, userID string) (*Member, error)
	SendDirectMessage(ctx context.Context, userID string, msg OutgoingMessage) error
}

// Gateway is the full mutation and query surface of the chat platform.
type Gateway interface {
	RoleAPI
	ChannelAPI
	MessageAPI
	MemberAPI
}
