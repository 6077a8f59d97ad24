package model

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and collapses runs of non-alphanumeric characters
// to a single hyphen, trimming leading/trailing hyphens (spec.md §3: "Slug =
// lowercase of name with non-alphanumerics collapsed to -").
func Slugify(name string) string {
	s := nonAlphanumeric.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}
