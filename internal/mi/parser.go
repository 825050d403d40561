package mi

import (
	"regexp"
	"strconv"
	"strings"
)

var tokenPrefixRe = regexp.MustCompile(`^\d+`)

// Parse converts a single, already-classified MI protocol line (no
// trailing newline, not a "(gdb)" prompt) into a Record. Classification of
// raw child stdout into "is this an MI line" happens one layer up, in the
// session's buffering policy; Parse assumes it has already been handed a
// genuine MI line.
func Parse(line string) (Record, error) {
	rest := line
	var tok *int
	if m := tokenPrefixRe.FindString(rest); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil {
			return Record{}, &MalformedRecordError{line, "bad token"}
		}
		tok = &n
		rest = rest[len(m):]
	}
	if rest == "" {
		return Record{}, &MalformedRecordError{line, "nothing after token"}
	}

	marker := rest[0]
	body := rest[1:]

	switch marker {
	case '^':
		rr, err := parseResult(body)
		if err != nil {
			return Record{}, err
		}
		return Record{Token: tok, Result: &rr}, nil

	case '~', '@', '&':
		text, err := parseCString(strings.TrimSpace(body))
		if err != nil {
			return Record{}, err
		}
		kind := map[byte]StreamKind{'~': StreamConsole, '@': StreamTarget, '&': StreamLog}[marker]
		return Record{Token: tok, OOB: []OOBRecord{{Stream: &StreamRecord{Kind: kind, Text: text}}}}, nil

	case '=', '*', '+':
		ar, err := parseAsync(body)
		if err != nil {
			return Record{}, err
		}
		ar.Kind = map[byte]AsyncKind{'=': AsyncNotify, '*': AsyncExec, '+': AsyncStatus}[marker]
		return Record{Token: tok, OOB: []OOBRecord{{Async: &ar}}}, nil

	default:
		return Record{}, &MalformedRecordError{line, "unrecognized leading marker"}
	}
}

func parseResult(body string) (ResultRecord, error) {
	classStr, rest := splitFirst(body)
	switch ResultClass(classStr) {
	case ClassDone, ClassRunning, ClassConnected, ClassError, ClassExit:
	default:
		return ResultRecord{}, &MalformedRecordError{body, "unknown result class " + classStr}
	}
	values, err := parseKVList(rest)
	if err != nil {
		return ResultRecord{}, err
	}
	return ResultRecord{Class: ResultClass(classStr), Values: values}, nil
}

func parseAsync(body string) (AsyncRecord, error) {
	classStr, rest := splitFirst(body)
	values, err := parseKVList(rest)
	if err != nil {
		return AsyncRecord{}, err
	}
	return AsyncRecord{Class: classStr, Values: values}, nil
}

// splitFirst splits "a,b,c" into ("a", "b,c"); with no comma it returns
// (s, "").
func splitFirst(s string) (string, string) {
	idx := strings.IndexByte(s, ',')
	if idx == -1 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// parseKVList parses a (possibly empty) comma-separated "key=value,..."
// list at the top level of a result or async record, or inside a tuple's
// braces, into a KindTuple Value. Commas nested inside quotes, [...] or
// {...} do not split the list.
func parseKVList(s string) (Value, error) {
	s = strings.TrimSpace(s)
	tuple := Value{Kind: KindTuple}
	if s == "" {
		return tuple, nil
	}
	for _, part := range splitTopLevel(s) {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return Value{}, &MalformedRecordError{part, "expected key=value"}
		}
		key := part[:eq]
		val, err := parseValue(part[eq+1:])
		if err != nil {
			return Value{}, err
		}
		tuple.Pairs = append(tuple.Pairs, KV{Key: key, Val: val})
	}
	return tuple, nil
}

// parseValue parses one value: a quoted string, a "[...]" list, a "{...}"
// tuple, or (rarely, per the grammar) a bare token.
func parseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, &MalformedRecordError{s, "empty value"}
	}
	switch s[0] {
	case '"':
		str, err := parseCString(s)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: str}, nil
	case '[':
		if s[len(s)-1] != ']' {
			return Value{}, &MalformedRecordError{s, "unbalanced ["}
		}
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return Value{Kind: KindList}, nil
		}
		var items []Value
		for _, part := range splitTopLevel(inner) {
			item, err := parseListElement(strings.TrimSpace(part))
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{Kind: KindList, Items: items}, nil
	case '{':
		if s[len(s)-1] != '}' {
			return Value{}, &MalformedRecordError{s, "unbalanced {"}
		}
		return parseKVList(s[1 : len(s)-1])
	default:
		return Value{Kind: KindString, Str: s}, nil
	}
}

var bareKeyEqRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*=`)

// parseListElement handles the fact that MI lists sometimes hold bare
// values ("["1","2"]") and sometimes hold key=value pairs
// ("[frame={...},frame={...}]"); the latter is wrapped as a one-entry
// tuple so list items stay uniformly addressable via Path.
func parseListElement(s string) (Value, error) {
	if loc := bareKeyEqRe.FindStringIndex(s); loc != nil {
		key := s[:loc[1]-1]
		val, err := parseValue(s[loc[1]:])
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindTuple, Pairs: []KV{{Key: key, Val: val}}}, nil
	}
	return parseValue(s)
}

// splitTopLevel splits s on commas that are not nested inside a quoted
// string or a [...]/{...} span.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	inQuote := false
	escaped := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inQuote {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// parseCString unescapes a double-quoted MI string token (the whole of s
// must be exactly one such token).
func parseCString(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", &MalformedRecordError{s, "expected quoted string"}
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c == '\\' && i+1 < len(inner) {
			i++
			switch inner[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(inner[i])
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}
