package metrics

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/mstoykov/atlas"
)

// TagSet is a mutable builder over an immutable persistent tag trie, used to
// accumulate ad hoc string tags (e.g. while threading per-iteration context
// through a user script) outside of the interned, sorted TagSet that
// lib/tagset.TagSet and the metrics Registry use for series storage. The two
// are deliberately separate: this one optimizes for cheap structural
// sharing across branches (BranchOut), the registry's does for compact,
// hashable series keys.
type TagSet struct {
	tags atlas.Node
}

// NewTagSet builds a TagSet from a plain map, useful for tests and for
// seeding a scenario's base tags.
func NewTagSet(m map[string]string) *TagSet {
	node := atlas.New()
	for k, v := range m {
		node = node.AddLink(k, v)
	}
	return &TagSet{tags: node}
}

// AddTag links key to value, mutating this TagSet in place.
func (ts *TagSet) AddTag(key, value string) {
	ts.tags = ts.tags.AddLink(key, value)
}

// BranchOut returns a new TagSet that shares this TagSet's current tags but
// can be mutated independently from here on.
func (ts *TagSet) BranchOut() *TagSet {
	return &TagSet{tags: ts.tags}
}

// Map flattens the TagSet into a plain map[string]string.
func (ts *TagSet) Map() map[string]string {
	return ts.tags.GetMap()
}

// SampleTags is an immutable snapshot of tags attached to a recorded sample.
// It wraps the same persistent trie as TagSet but never mutates in place;
// callers that want to add tags go through TagSetFromSampleTags.
type SampleTags struct {
	tags atlas.Node

	mu   sync.Mutex
	json []byte
}

// IsEqual reports whether st and other resolve to the same underlying node.
// A nil *SampleTags is treated as the empty set.
func (st *SampleTags) IsEqual(other *SampleTags) bool {
	stEmpty := st == nil || st.tags == nil || st.tags.Len() == 0
	otherEmpty := other == nil || other.tags == nil || other.tags.Len() == 0
	if stEmpty || otherEmpty {
		return stEmpty && otherEmpty
	}
	return st.tags == other.tags
}

// IsEmpty reports whether the tag set has no entries.
func (st *SampleTags) IsEmpty() bool {
	return st == nil || st.tags == nil || st.tags.Len() == 0
}

// Get returns the value for key, if present.
func (st *SampleTags) Get(key string) (string, bool) {
	if st == nil || st.tags == nil {
		return "", false
	}
	return st.tags.Get(key)
}

// CloneTags flattens the tag set into a fresh map[string]string.
func (st *SampleTags) CloneTags() map[string]string {
	if st == nil || st.tags == nil {
		return map[string]string{}
	}
	return st.tags.GetMap()
}

// Contains reports whether every tag in other is also present with the same
// value in st.
func (st *SampleTags) Contains(other *SampleTags) bool {
	if other.IsEmpty() {
		return true
	}
	if st.IsEmpty() {
		return false
	}
	for k, v := range other.CloneTags() {
		got, ok := st.Get(k)
		if !ok || got != v {
			return false
		}
	}
	return true
}

// MarshalJSON renders the tag set as a flat JSON object, or `null` when
// empty. The rendering is cached since SampleTags are immutable once built.
func (st *SampleTags) MarshalJSON() ([]byte, error) {
	if st.IsEmpty() {
		return []byte("null"), nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.json != nil {
		return st.json, nil
	}
	data, err := json.Marshal(st.CloneTags())
	if err != nil {
		return nil, err
	}
	st.json = data
	return data, nil
}

// UnmarshalJSON replaces the tag set's contents with the flat object m.
func (st *SampleTags) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	node := atlas.New()
	for k, v := range m {
		node = node.AddLink(k, v)
	}
	st.tags = node
	return nil
}

// TagSetFromSampleTags returns a mutable TagSet branching off of st's
// current tags, so st itself is left untouched.
func TagSetFromSampleTags(st *SampleTags) *TagSet {
	if st == nil || st.tags == nil {
		return &TagSet{tags: atlas.New()}
	}
	return &TagSet{tags: st.tags}
}

// SampleTags freezes the TagSet into an immutable snapshot suitable for
// attaching to a recorded sample.
func (ts *TagSet) SampleTags() *SampleTags {
	return &SampleTags{tags: ts.tags}
}

// EnabledTags is a set of system tag names the run has been configured to
// attach to every sample (e.g. "ip", "proto", "group").
type EnabledTags map[string]bool

// MarshalJSON renders the set as a sorted JSON array of tag names.
func (et EnabledTags) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(et))
	for name, enabled := range et {
		if enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return json.Marshal(names)
}

// UnmarshalJSON replaces the set's contents with the names in a JSON array.
func (et *EnabledTags) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	out := make(EnabledTags, len(names))
	for _, name := range names {
		out[name] = true
	}
	*et = out
	return nil
}

// UnmarshalText parses a comma-separated list of tag names, trimming
// whitespace and ignoring empty entries.
func (et *EnabledTags) UnmarshalText(data []byte) error {
	out := make(EnabledTags)
	for _, part := range strings.Split(string(data), ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		out[name] = true
	}
	*et = out
	return nil
}
