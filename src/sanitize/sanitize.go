// Package sanitize cleans customer-supplied text before it is stored or sent
// to the conversational gateway, and normalizes the assistant's replies.
//
// Terminal rendering has its own ANSI handling in the tui package.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"
)

// AgentSignature closes every generated reply.
const AgentSignature = "-- Agent Free"

var (
	// Runs of spaces and tabs, newlines excluded.
	inlineSpace = regexp.MustCompile(`[ \t]+`)

	// Three or more newlines collapse to a paragraph break.
	blankLines = regexp.MustCompile(`\n{3,}`)

	accents = strings.NewReplacer(
		"à", "a", "â", "a", "ä", "a", "á", "a",
		"ç", "c",
		"é", "e", "è", "e", "ê", "e", "ë", "e",
		"î", "i", "ï", "i", "í", "i",
		"ô", "o", "ö", "o", "ó", "o",
		"ù", "u", "û", "u", "ü", "u", "ú", "u",
		"ÿ", "y", "œ", "oe", "æ", "ae",
		"’", "'",
	)
)

// StripANSI removes terminal escape sequences.
func StripANSI(s string) string {
	return ansi.Strip(s)
}

// Clean prepares a message body for storage: escape sequences and control
// characters are removed, line endings normalized, inline whitespace
// collapsed and the result trimmed.
func Clean(s string) string {
	s = StripANSI(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Fold lower-cases s and strips French diacritics so keyword matching is
// insensitive to both.
func Fold(s string) string {
	return accents.Replace(strings.ToLower(s))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// NormalizeSignature makes sure a generated reply ends with AgentSignature
// on its own line.
func NormalizeSignature(text string) string {
	if strings.HasSuffix(strings.TrimSpace(text), AgentSignature) {
		return text
	}
	return strings.TrimRight(text, " \t\r\n") + "\n" + AgentSignature
}
