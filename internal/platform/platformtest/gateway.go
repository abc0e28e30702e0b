// Package platformtest provides an in-memory platform.Gateway for tests.
package platformtest

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aura-community/gatekeeper/internal/platform"
)

// Operation names used in the call log and for failure injection.
const (
	OpCreateRole     = "create_role"
	OpAddRole        = "add_role"
	OpRemoveRole     = "remove_role"
	OpCreateChannel  = "create_channel"
	OpGetChannel     = "get_channel"
	OpSendMessage    = "send_message"
	OpFetchMessages  = "fetch_messages"
	OpAddReaction    = "add_reaction"
	OpRemoveReaction = "remove_reaction"
	OpFetchMember    = "fetch_member"
	OpDirectMessage  = "direct_message"
)

var mutatingOps = map[string]bool{
	OpCreateRole:     true,
	OpAddRole:        true,
	OpRemoveRole:     true,
	OpCreateChannel:  true,
	OpSendMessage:    true,
	OpAddReaction:    true,
	OpRemoveReaction: true,
	OpDirectMessage:  true,
}

// Gateway is a thread-safe fake of the chat platform. Role add/remove follow
// the real platform's set semantics.
type Gateway struct {
	mu        sync.Mutex
	nextID    int
	guilds    map[string]*platform.Guild
	roles     map[string][]platform.Role
	channels  map[string]*platform.Channel
	messages  map[string][]platform.Message
	reactions map[string][]string
	members   map[string]*platform.Member
	uncached  map[string]bool
	dms       map[string][]platform.OutgoingMessage
	failures  map[string]error
	calls     []string

	// Delay is slept inside CreateRole and FetchRecentMessages to widen race windows.
	Delay time.Duration
}

// New returns an empty fake.
func New() *Gateway {
	return &Gateway{
		nextID:    1000,
		guilds:    map[string]*platform.Guild{},
		roles:     map[string][]platform.Role{},
		channels:  map[string]*platform.Channel{},
		messages:  map[string][]platform.Message{},
		reactions: map[string][]string{},
		members:   map[string]*platform.Member{},
		uncached:  map[string]bool{},
		dms:       map[string][]platform.OutgoingMessage{},
		failures:  map[string]error{},
	}
}

func (g *Gateway) id() string {
	g.nextID++
	return strconv.Itoa(g.nextID)
}

func memberKey(guildID, userID string) string { return guildID + "/" + userID }

func reactionKey(channelID, messageID, emoji string) string {
	return channelID + "/" + messageID + "/" + platform.CanonicalEmoji(emoji)
}

// AddGuild registers a guild.
func (g *Gateway) AddGuild(guild platform.Guild) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.guilds[guild.ID] = &guild
}

// SeedRole creates a role without logging a call.
func (g *Gateway) SeedRole(guildID, name string) platform.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := platform.Role{ID: g.id(), GuildID: guildID, Name: name}
	g.roles[guildID] = append(g.roles[guildID], r)
	return r
}

// SeedChannel creates a channel without logging a call.
func (g *Gateway) SeedChannel(guildID, name string) platform.Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := platform.Channel{ID: g.id(), GuildID: guildID, Name: name}
	g.channels[ch.ID] = &ch
	return ch
}

// SeedMessage posts a message without logging a call.
func (g *Gateway) SeedMessage(channelID string, msg platform.Message) platform.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg.ID = g.id()
	msg.ChannelID = channelID
	g.messages[channelID] = append(g.messages[channelID], msg)
	return msg
}

// AddMember registers a member in the guild and in the member cache.
func (g *Gateway) AddMember(m platform.Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m.RoleIDs = slices.Clone(m.RoleIDs)
	g.members[memberKey(m.GuildID, m.UserID)] = &m
}

// Uncache hides a member from CachedMember so callers must fetch it.
func (g *Gateway) Uncache(guildID, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uncached[memberKey(guildID, userID)] = true
}

// Fail makes op fail with err whenever its argument equals arg. arg "*" matches
// any argument. Role operations match on role name, channel operations on
// channel ID, direct messages on user ID.
func (g *Gateway) Fail(op, arg string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op+":"+arg] = err
}

// Clear removes a failure registered with Fail.
func (g *Gateway) Clear(op, arg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, op+":"+arg)
}

func (g *Gateway) check(ctx context.Context, op, arg string) error {
	if err := ctx.Err(); err != nil {
		return platform.NewError(op, platform.ErrTransient, err)
	}
	g.calls = append(g.calls, op+":"+arg)
	if err, ok := g.failures[op+":"+arg]; ok {
		return platform.NewError(op, err, nil)
	}
	if err, ok := g.failures[op+":*"]; ok {
		return platform.NewError(op, err, nil)
	}
	return nil
}

func (g *Gateway) sleep() {
	if g.Delay > 0 {
		time.Sleep(g.Delay)
	}
}

func (g *Gateway) roleByID(guildID, roleID string) (platform.Role, bool) {
	for _, r := range g.roles[guildID] {
		if r.ID == roleID {
			return r, true
		}
	}
	return platform.Role{}, false
}

// Roles implements platform.RoleAPI.
func (g *Gateway) Roles(ctx context.Context, guildID string) ([]platform.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, platform.NewError("roles", platform.ErrTransient, err)
	}
	return slices.Clone(g.roles[guildID]), nil
}

// CreateRole implements platform.RoleAPI. Duplicate names are allowed, as on the real platform.
func (g *Gateway) CreateRole(ctx context.Context, guildID, name string) (*platform.Role, error) {
	g.sleep()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(ctx, OpCreateRole, name); err != nil {
		return nil, err
	}
	r := platform.Role{ID: g.id(), GuildID: guildID, Name: name}
	g.roles[guildID] = append(g.roles[guildID], r)
	return &r, nil
}

// AddRole implements platform.RoleAPI.
func (g *Gateway) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	role, ok := g.roleByID(guildID, roleID)
	if err := g.check(ctx, OpAddRole, role.Name); err != nil {
		return err
	}
	m := g.members[memberKey(guildID, userID)]
	if m == nil || !ok {
		return platform.NewError(OpAddRole, platform.ErrNotFound, nil)
	}
	if !m.HasRole(roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	return nil
}

// RemoveRole implements platform.RoleAPI.
func (g *Gateway) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	role, _ := g.roleByID(guildID, roleID)
	if err := g.check(ctx, OpRemoveRole, role.Name); err != nil {
		return err
	}
	m := g.members[memberKey(guildID, userID)]
	if m == nil {
		return platform.NewError(OpRemoveRole, platform.ErrNotFound, nil)
	}
	m.RoleIDs = slices.DeleteFunc(m.RoleIDs, func(id string) bool { return id == roleID })
	return nil
}

// GetChannel implements platform.ChannelAPI.
func (g *Gateway) GetChannel(ctx context.Context, channelID string) (*platform.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(ctx, OpGetChannel, channelID); err != nil {
		return nil, err
	}
	ch, ok := g.channels[channelID]
	if !ok {
		return nil, platform.NewError(OpGetChannel, platform.ErrNotFound, fmt.Errorf("channel %s", channelID))
	}
	c := *ch
	return &c, nil
}

// FindChannelByName implements platform.ChannelAPI.
func (g *Gateway) FindChannelByName(ctx context.Context, guildID, name string) (*platform.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, platform.NewError("find_channel", platform.ErrTransient, err)
	}
	var best *platform.Channel
	for _, ch := range g.channels {
		if ch.GuildID != guildID || ch.Name != name {
			continue
		}
		if best == nil || olderID(ch.ID, best.ID) {
			best = ch
		}
	}
	if best == nil {
		return nil, platform.NewError("find_channel", platform.ErrNotFound, fmt.Errorf("channel %q", name))
	}
	c := *best
	return &c, nil
}

// CreateChannel implements platform.ChannelAPI.
func (g *Gateway) CreateChannel(ctx context.Context, guildID, name string, readOnly bool) (*platform.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(ctx, OpCreateChannel, name); err != nil {
		return nil, err
	}
	ch := platform.Channel{ID: g.id(), GuildID: guildID, Name: name}
	g.channels[ch.ID] = &ch
	c := ch
	return &c, nil
}

// SendMessage implements platform.MessageAPI.
func (g *Gateway) SendMessage(ctx context.Context, channelID string, msg platform.OutgoingMessage) (*platform.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(ctx, OpSendMessage, channelID); err != nil {
		return nil, err
	}
	if _, ok := g.channels[channelID]; !ok {
		return nil, platform.NewError(OpSendMessage, platform.ErrNotFound, nil)
	}
	m := platform.Message{ID: g.id(), ChannelID: channelID, AuthorID: "bot", Content: msg.Content}
	if msg.Embed != nil {
		m.Embeds = []platform.Embed{*msg.Embed}
	}
	g.messages[channelID] = append(g.messages[channelID], m)
	return &m, nil
}

// FetchRecentMessages implements platform.MessageAPI.
func (g *Gateway) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	g.sleep()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(ctx, OpFetchMessages, channelID); err != nil {
		return nil, err
	}
	all := g.messages[channelID]
	out := make([]platform.Message, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// AddReaction implements platform.MessageAPI.
func (g *Gateway) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(ctx, OpAddReaction, channelID); err != nil {
		return err
	}
	key := reactionKey(channelID, messageID, emoji)
	if !slices.Contains(g.reactions[key], "bot") {
		g.reactions[key] = append(g.reactions[key], "bot")
	}
	return nil
}

// React records a user's reaction without logging a call.
func (g *Gateway) React(channelID, messageID, emoji, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := reactionKey(channelID, messageID, emoji)
	if !slices.Contains(g.reactions[key], userID) {
		g.reactions[key] = append(g.reactions[key], userID)
	}
}

// RemoveReaction implements platform.MessageAPI.
func (g *Gateway) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(ctx, OpRemoveReaction, channelID); err != nil {
		return err
	}
	key := reactionKey(channelID, messageID, emoji)
	g.reactions[key] = slices.DeleteFunc(g.reactions[key], func(u string) bool { return u == userID })
	return nil
}

// Guild implements platform.MemberAPI.
func (g *Gateway) Guild(ctx context.Context, guildID string) (*platform.Guild, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	guild, ok := g.guilds[guildID]
	if !ok {
		return nil, platform.NewError("guild", platform.ErrNotFound, nil)
	}
	out := *guild
	for key := range g.members {
		if strings.HasPrefix(key, guildID+"/") {
			out.MemberCount++
		}
	}
	return &out, nil
}

// CachedMember implements platform.MemberAPI.
func (g *Gateway) CachedMember(guildID, userID string) (*platform.Member, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := memberKey(guildID, userID)
	m, ok := g.members[key]
	if !ok || g.uncached[key] {
		return nil, false
	}
	out := *m
	out.RoleIDs = slices.Clone(m.RoleIDs)
	return &out, true
}

// FetchMember implements platform.MemberAPI.
func (g *Gateway) FetchMember(ctx context.Context, guildID, userID string) (*platform.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(ctx, OpFetchMember, userID); err != nil {
		return nil, err
	}
	m, ok := g.members[memberKey(guildID, userID)]
	if !ok {
		return nil, platform.NewError(OpFetchMember, platform.ErrNotFound, nil)
	}
	out := *m
	out.RoleIDs = slices.Clone(m.RoleIDs)
	return &out, nil
}

// SendDirectMessage implements platform.MemberAPI.
func (g *Gateway) SendDirectMessage(ctx context.Context, userID string, msg platform.OutgoingMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(ctx, OpDirectMessage, userID); err != nil {
		return err
	}
	g.dms[userID] = append(g.dms[userID], msg)
	return nil
}

// RolesNamed returns every role in the guild called name.
func (g *Gateway) RolesNamed(guildID, name string) []platform.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []platform.Role
	for _, r := range g.roles[guildID] {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// MemberRoleNames returns the names of the roles a member holds, sorted.
func (g *Gateway) MemberRoleNames(guildID, userID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.members[memberKey(guildID, userID)]
	if m == nil {
		return nil
	}
	var names []string
	for _, id := range m.RoleIDs {
		if r, ok := g.roleByID(guildID, id); ok {
			names = append(names, r.Name)
		}
	}
	slices.Sort(names)
	return names
}

// ChannelsNamed returns every channel in the guild called name.
func (g *Gateway) ChannelsNamed(guildID, name string) []platform.Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []platform.Channel
	for _, ch := range g.channels {
		if ch.GuildID == guildID && ch.Name == name {
			out = append(out, *ch)
		}
	}
	return out
}

// Messages returns a channel's messages, oldest first.
func (g *Gateway) Messages(channelID string) []platform.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.messages[channelID])
}

// Reactors returns the users that reacted with emoji on a message.
func (g *Gateway) Reactors(channelID, messageID, emoji string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.reactions[reactionKey(channelID, messageID, emoji)])
}

// DirectMessages returns what was sent to userID.
func (g *Gateway) DirectMessages(userID string) []platform.OutgoingMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.dms[userID])
}

// Calls returns the call log as "op:arg" entries.
func (g *Gateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

// CallCount counts logged calls of op.
func (g *Gateway) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if strings.HasPrefix(c, op+":") {
			n++
		}
	}
	return n
}

// Mutations counts logged calls that change platform state.
func (g *Gateway) Mutations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		op, _, _ := strings.Cut(c, ":")
		if mutatingOps[op] {
			n++
		}
	}
	return n
}

func olderID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

var _ platform.Gateway = (*Gateway)(nil)
