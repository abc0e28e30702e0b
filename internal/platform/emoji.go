package platform

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultVerificationEmoji is the marker reaction on the verification prompt.
const DefaultVerificationEmoji = "✅"

var variationSelectors = strings.NewReplacer("\uFE0F", "", "\uFE0E", "")

// CanonicalEmoji returns the NFC form of a unicode emoji with presentation
// selectors removed, so "✅" and "✅" followed by U+FE0F compare equal.
func CanonicalEmoji(s string) string {
	return variationSelectors.Replace(norm.NFC.String(strings.TrimSpace(s)))
}

// Matches reports whether the reaction is the unicode emoji want. Custom guild
// emoji never match, even when their display name collides.
func (e Emoji) Matches(want string) bool {
	if e.ID != "" {
		return false
	}
	got := CanonicalEmoji(e.Name)
	return got != "" && got == CanonicalEmoji(want)
}
