package tui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// wrapBreakpoints are the characters, besides spaces, after which a long
// line may be broken.
const wrapBreakpoints = "-/,;"

// VisualWidth returns the display width of text, ignoring ANSI styling and
// accounting for wide characters.
func VisualWidth(s string) int {
	return ansi.StringWidth(s)
}

// Truncate truncates plain text to maxLen columns with optional ellipsis.
func Truncate(s string, maxLen int, ellipsis bool) string {
	s = strings.TrimSpace(s)
	if maxLen <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxLen {
		return s
	}
	if ellipsis && maxLen > 3 {
		return runewidth.Truncate(s, maxLen-3, "") + "..."
	}
	return runewidth.Truncate(s, maxLen, "")
}

// TruncateAndPad truncates plain text and pads it to exactly width columns.
func TruncateAndPad(s string, width int, ellipsis bool) string {
	return runewidth.FillRight(Truncate(s, width, ellipsis), width)
}

// Wrap wraps text to width columns on word boundaries. Words longer than
// width are broken mid-word. Existing newlines are kept.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return ansi.Wrap(text, width, wrapBreakpoints)
}

// Indent prefixes every line of text with pad.
func Indent(text, pad string) string {
	lines := SplitLines(text)
	for i, line := range lines {
		lines[i] = pad + line
	}
	return strings.Join(lines, "\n")
}

// SplitLines splits text by newlines, returning empty slice if text is empty
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}
