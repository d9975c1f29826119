// Package tagset implements the Tag Interner & TagSet component: cheap,
// stable identity for tag strings, and compact tag-set values usable as map
// keys and projection inputs by the metrics registry.
package tagset

import (
	"fmt"
	"sort"
)

// Pair is one (key, value) entry of a TagSet, expressed as interned ids.
type Pair struct {
	Key   KeyId
	Value KeyId
}

// TagSet is an immutable, sorted-by-KeyId sequence of (key, value) pairs.
// Equality is structural: two TagSets with the same pairs in the same order
// are equal. Ordering is by KeyId, not by the original string, so it is
// stable for a single run but not portable across runs.
type TagSet struct {
	pairs []Pair
}

// Empty is the TagSet with no pairs.
var Empty = TagSet{}

// FromPairs validates that keys are unique within pairs, sorts by key
// ascending, and returns the resulting immutable TagSet. It returns an error
// if the same key appears twice.
func FromPairs(pairs []Pair) (TagSet, error) {
	out := make([]Pair, len(pairs))
	copy(out, pairs)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	for i := 1; i < len(out); i++ {
		if out[i].Key == out[i-1].Key {
			return TagSet{}, fmt.Errorf("tagset: duplicate key id %d", out[i].Key)
		}
	}
	return TagSet{pairs: out}, nil
}

// ResolveTags interns every key and value in kv and returns the resulting
// sorted TagSet.
func ResolveTags(in *Interner, kv map[string]string) TagSet {
	pairs := make([]Pair, 0, len(kv))
	for k, v := range kv {
		pairs = append(pairs, Pair{Key: in.Intern(k), Value: in.Intern(v)})
	}
	ts, err := FromPairs(pairs)
	if err != nil {
		// kv is a map, so keys are already unique; FromPairs cannot fail here.
		panic(err)
	}
	return ts
}

// Len returns the number of pairs in the set.
func (t TagSet) Len() int { return len(t.pairs) }

// Pairs returns the set's pairs in KeyId order. The caller must not mutate
// the returned slice.
func (t TagSet) Pairs() []Pair { return t.pairs }

// Get performs a binary search by key and returns the associated value.
func (t TagSet) Get(key KeyId) (KeyId, bool) {
	i := sort.Search(len(t.pairs), func(i int) bool { return t.pairs[i].Key >= key })
	if i < len(t.pairs) && t.pairs[i].Key == key {
		return t.pairs[i].Value, true
	}
	return 0, false
}

// Has reports whether key is present in the set.
func (t TagSet) Has(key KeyId) bool {
	_, ok := t.Get(key)
	return ok
}

// Project returns a new TagSet containing only the pairs whose key appears
// in keys. keys need not be sorted or deduplicated by the caller.
func (t TagSet) Project(keys []KeyId) TagSet {
	want := make(map[KeyId]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	out := make([]Pair, 0, len(t.pairs))
	for _, p := range t.pairs {
		if _, ok := want[p.Key]; ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return Empty
	}
	return TagSet{pairs: out}
}

// Equal reports whether t and other contain the same pairs in the same
// order. Because both are sorted by KeyId, this is a structural comparison.
func (t TagSet) Equal(other TagSet) bool {
	if len(t.pairs) != len(other.pairs) {
		return false
	}
	for i := range t.pairs {
		if t.pairs[i] != other.pairs[i] {
			return false
		}
	}
	return true
}

// Hash returns a value suitable for use as a map key alongside a MetricId,
// collapsing the TagSet to a comparable string built from its interned ids.
// It is not stable across runs or across Interner instances.
func (t TagSet) Hash() string {
	// (key,value) pairs are fixed-width uint32 pairs; encoding them as a
	// byte string gives a cheap, collision-free map key for a single run.
	buf := make([]byte, 0, len(t.pairs)*8)
	for _, p := range t.pairs {
		buf = appendUint32(buf, uint32(p.Key))
		buf = appendUint32(buf, uint32(p.Value))
	}
	return string(buf)
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
