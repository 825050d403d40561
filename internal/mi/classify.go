package mi

import (
	"regexp"
	"strings"
)

// protocolLineRe matches the leading shape of a genuine MI protocol line:
// an optional token (digits, or the literal "undefined"), followed by one
// of the record markers, or a "(gdb)" prompt.
var protocolLineRe = regexp.MustCompile(`^(\d*|undefined)[*+=^]|^[~@&]`)
var promptRe = regexp.MustCompile(`^(?:\d*|undefined)\(gdb\)`)

// IsProtocolLine reports whether s (a complete line, no trailing newline)
// is an MI protocol line as opposed to inferior program output that
// happens to have been interleaved on the same stream.
func IsProtocolLine(s string) bool {
	return protocolLineRe.MatchString(s) || promptRe.MatchString(s)
}

// IsPrompt reports whether s is exactly a "(gdb)" ready prompt, which
// callers ignore rather than hand to Parse.
func IsPrompt(s string) bool {
	return promptRe.MatchString(s)
}

// CouldBecomeProtocolLine reports whether a partial, not-yet-newline-
// terminated chunk could still grow into a protocol line. It is used to
// decide whether to keep buffering (it could be MI) or flush immediately
// as inferior program output (it can't be).
func CouldBecomeProtocolLine(s string) bool {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	rest := s[i:]
	if i == 0 {
		if strings.HasPrefix("undefined", rest) {
			return true
		}
		rest = strings.TrimPrefix(rest, "undefined")
	}
	if rest == "" {
		return true
	}
	switch rest[0] {
	case '*', '+', '=', '~', '@', '&', '^', '(':
		return true
	default:
		return false
	}
}
