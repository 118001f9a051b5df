package mcp

import (
	"regexp"
	"strings"

	"freeda-support/src/contracts"
	"freeda-support/src/sanitize"
)

// Output limits. Tool results go straight into a model context, so long
// conversations are cut down to what an agent needs to act.
const (
	previewLength    = 100
	transcriptLength = 400
	// MaxTranscriptMessages caps get_ticket transcripts to the latest turns.
	MaxTranscriptMessages = 20
)

// signaturePattern matches the agent signature appended to replies.
var signaturePattern = regexp.MustCompile(`\s*` + regexp.QuoteMeta(sanitize.AgentSignature) + `\s*$`)

// whitespacePattern matches multiple consecutive whitespace characters.
var whitespacePattern = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses newlines, spaces and tabs and trims.
func normalizeWhitespace(line string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " "))
}

// CompressLine flattens a message body to a single line of at most n runes.
// The agent signature carries no information for a reader and is dropped.
func CompressLine(text string, n int) string {
	text = signaturePattern.ReplaceAllString(sanitize.StripANSI(text), "")
	text = normalizeWhitespace(text)
	if len([]rune(text)) <= n {
		return text
	}
	return sanitize.Truncate(text, n-3) + "..."
}

// CompressTranscript renders the last limit messages as one line each and
// reports how many older messages were left out.
func CompressTranscript(msgs []contracts.Message, limit int) (lines []string, omitted int) {
	if limit > 0 && len(msgs) > limit {
		omitted = len(msgs) - limit
		msgs = msgs[omitted:]
	}
	lines = make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = string(m.Type) + " " + m.Author + ": " + CompressLine(m.Content, transcriptLength)
	}
	return lines, omitted
}
