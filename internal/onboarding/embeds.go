package onboarding

import (
	"fmt"
	"strings"

	"github.com/aura-community/gatekeeper/internal/platform"
)

// PromptMarker is searched for in embed titles to recognize an existing prompt.
const PromptMarker = "Verify Yourself"

const (
	welcomeColor = 0xFAD6A5
	promptColor  = 0xF2B5D4
)

// WelcomeEmbed renders the greeting for member. verifyRef is a channel mention
// or a plain "#name" when the verify channel is unknown.
func WelcomeEmbed(guild *platform.Guild, member *platform.Member, verifyRef string) *platform.Embed {
	thumb := member.AvatarURL
	if thumb == "" {
		thumb = guild.IconURL
	}
	return &platform.Embed{
		Title:        "🌸 Welcome to the Server!",
		Description:  fmt.Sprintf("Hey %s, we're happy to have you here! ✨\nHead to %s to unlock everything 💫", member.Mention(), verifyRef),
		Color:        welcomeColor,
		Footer:       fmt.Sprintf("Member #%d • %s", guild.MemberCount, guild.Name),
		ThumbnailURL: thumb,
	}
}

// PromptEmbed renders the verification prompt.
func PromptEmbed(emoji string) *platform.Embed {
	return &platform.Embed{
		Title:       "🔒 " + PromptMarker,
		Description: fmt.Sprintf("Click the %s below to verify and unlock all channels 🌸", emoji),
		Color:       promptColor,
		Footer:      "Verification System • Stay Safe 🌷",
	}
}

// IsPrompt reports whether msg is a verification prompt.
func IsPrompt(msg platform.Message) bool {
	for _, e := range msg.Embeds {
		if strings.Contains(e.Title, PromptMarker) {
			return true
		}
	}
	return false
}
