package sandbox

import (
	"regexp"
	"strings"
)

// Tool output is shown to the reasoning step that dispatched it. Anything in
// that output shaped like an action instruction must be stripped first, or a
// hostile tool could steer the reasoner into dispatching actions it never
// decided to take.
var (
	// Bracket-delimited pseudo-calls: [do_thing(...)].
	bracketCallPattern = regexp.MustCompile(`\[[a-zA-Z_][a-zA-Z0-9_]*\([^\[\]]*\)\]`)

	// Bare calls to the known action verbs: recall("..."), web_search(...).
	verbCallPattern = regexp.MustCompile(`(?i)\b(recall|remember|update_memory|forget|get_time|list_tools|web_search)\s*\([^()]*\)`)

	// Literal instruction markers, wherever they sit in a line: everything
	// from the marker to the end of that line goes.
	actionMarkerPattern = regexp.MustCompile(`(?i)\bACTION:[^\n]*`)
)

// SanitizeToolOutput strips action-instruction-shaped substrings from text
// destined for the reasoner. Deterministic for a given input.
func SanitizeToolOutput(text string) string {
	out := actionMarkerPattern.ReplaceAllString(text, "")
	out = bracketCallPattern.ReplaceAllString(out, "")
	out = verbCallPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
