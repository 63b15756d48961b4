// Package text holds width-aware string helpers for terminal output. Widths
// count visible runes; ANSI escape sequences take no space.
package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// VisibleWidth returns the number of visible runes in s.
func VisibleWidth(s string) int {
	return utf8.RuneCountInString(StripANSI(s))
}

// Truncate shortens s to width visible runes, ending in "..." when cut.
// A cut string loses its ANSI codes.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if VisibleWidth(s) <= width {
		return s
	}
	runes := []rune(StripANSI(s))
	if width <= len(ellipsis) {
		return string(runes[:width])
	}
	return string(runes[:width-len(ellipsis)]) + ellipsis
}

// TruncateMiddle shortens s to width visible runes by cutting from the
// middle, keeping both ends of references like "ghcr.io/org/image:tag".
func TruncateMiddle(s string, width int) string {
	if width <= len(ellipsis)+2 {
		return Truncate(s, width)
	}
	if VisibleWidth(s) <= width {
		return s
	}
	runes := []rune(StripANSI(s))
	keep := width - len(ellipsis)
	head := keep / 2
	tail := keep - head
	return string(runes[:head]) + ellipsis + string(runes[len(runes)-tail:])
}

// FirstLine returns s up to its first newline.
func FirstLine(s string) string {
	first, _, _ := strings.Cut(s, "\n")
	return first
}
