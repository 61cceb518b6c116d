package utils

import (
	"regexp"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[\\/*?"<>|:]`)

// SanitizeFileName replaces characters that are unsafe in file names with '_'
// and trims surrounding whitespace and dots.
func SanitizeFileName(name string) string {
	name = unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, ". ")
	return name
}
