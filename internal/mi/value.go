// Package mi implements the GDB/MI2 value tree and line parser described
// in the adapter's source-map/session design: a small tagged union for MI
// values, addressable by dotted path, and a parser that turns one physical
// line of GDB/MI output into a typed record.
package mi

import "strings"

// Kind discriminates the three shapes an MI value can take.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindTuple
)

// KV is one key/value pair inside a Tuple. Tuples preserve insertion order
// and may contain duplicate keys (GDB repeats e.g. "frame=" at the top
// level of some notifications); duplicates are only resolved via Path's
// "@" selector, never silently collapsed.
type KV struct {
	Key string
	Val Value
}

// Value is an immutable node of the MI value tree: a bare/quoted string, an
// ordered list, or a keyed tuple. Exactly one of Str, Items, Pairs is
// meaningful, selected by Kind.
type Value struct {
	Kind  Kind
	Str   string
	Items []Value
	Pairs []KV
}

// String builds a leaf string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// AsString returns the string payload for a KindString value.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// lookup returns every Pairs entry whose key matches, in encounter order.
func (v Value) lookup(key string) []Value {
	if v.Kind != KindTuple {
		return nil
	}
	var out []Value
	for _, kv := range v.Pairs {
		if kv.Key == key {
			out = append(out, kv.Val)
		}
	}
	return out
}

// Path walks a dotted path through the tree. A path segment is normally a
// bare key name; a segment prefixed with "@" selects the first occurrence
// of that key when the tuple carries it more than once (GDB emits
// "frame={...}" repeatedly in some async records). A bare segment that
// matches more than one entry is ambiguous and Path reports not-found
// rather than silently guessing.
func (v Value) Path(path string) (Value, bool) {
	cur := v
	if path == "" {
		return cur, true
	}
	for _, seg := range strings.Split(path, ".") {
		first := strings.HasPrefix(seg, "@")
		key := seg
		if first {
			key = seg[1:]
		}
		matches := cur.lookup(key)
		switch {
		case len(matches) == 0:
			return Value{}, false
		case len(matches) == 1:
			cur = matches[0]
		case first:
			cur = matches[0]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// With returns a copy of a KindTuple value with key set to val, added at the
// end if not already present. Used to rewrite individual fields of a
// GDB-supplied tuple (e.g. swapping a C file/line pair for its COBOL
// equivalent) without mutating the original, since Value is otherwise
// immutable once parsed.
func (v Value) With(key string, val Value) Value {
	if v.Kind != KindTuple {
		return v
	}
	out := Value{Kind: KindTuple, Pairs: make([]KV, len(v.Pairs))}
	copy(out.Pairs, v.Pairs)
	for i, kv := range out.Pairs {
		if kv.Key == key {
			out.Pairs[i].Val = val
			return out
		}
	}
	out.Pairs = append(out.Pairs, KV{Key: key, Val: val})
	return out
}

// PathString is a convenience for the common case of wanting a leaf string.
func (v Value) PathString(path string) (string, bool) {
	val, ok := v.Path(path)
	if !ok {
		return "", false
	}
	return val.AsString()
}
