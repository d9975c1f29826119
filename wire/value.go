// Package wire translates between a language-agnostic semistructured value
// tree and the protobuf wire format, driven by a reflective message
// descriptor built at runtime from an abstract schema rather than generated
// .proto code.
package wire

// Value is a host-side value in the semistructured tree the codec
// translates to and from the wire format. It is one of: nil (Null), bool,
// int64 (I64), uint64 (U64), float64 (F64), string, []byte, []Value
// (Array), map[string]Value (Object), or MapValue (a typed-key map).
type Value = any

// MapEntry is one key/value pair of a typed-key map field. Key holds the
// decoded map key as one of bool, int64, uint64, or string, matching the
// field's key kind.
type MapEntry struct {
	Key   any
	Value Value
}

// MapValue is the host representation of a Map-shaped field: an ordered
// list of typed-key entries, distinct from Object (which is always
// string-keyed and used for messages and string-keyed map fields).
type MapValue []MapEntry
