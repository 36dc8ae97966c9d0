package utils

import (
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// NormalizeName trims and title-cases a signup name ("  aNNa " → "Anna").
func NormalizeName(name string) string {
	return titleCaser.String(strings.TrimSpace(name))
}

// NormalizeEmail lowercases and trims an address so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayHandle builds the public leaderboard handle: first name plus last
// initial, slugified ("Anna", "Šimková" → "anna-s").
func DisplayHandle(firstName, lastName string) string {
	handle := strings.TrimSpace(firstName)
	if last := []rune(strings.TrimSpace(lastName)); len(last) > 0 {
		handle += " " + string(last[0])
	}
	return slug.Make(handle)
}
