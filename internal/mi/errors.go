package mi

import "fmt"

// MalformedRecordError is returned when a line cannot be tokenized: an
// unbalanced bracket/quote, an unknown result class, or an unrecognized
// leading marker. The session logs these and moves on to the next line
// (see session.Session); the parser itself never recovers partial state.
type MalformedRecordError struct {
	Line   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed MI record %q: %s", e.Line, e.Reason)
}
