package audittrail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// SourceMetadataKey is the reserved diff key under which writers record
// where a change originated. It is bookkeeping rather than a field
// change, so diff parsing strips it unless metadata is requested.
const SourceMetadataKey = "@source"

// Diffs is the parsed form of an entry's diff payload. Keys at every
// nesting level are kept in sorted order, so two payloads describing the
// same change always serialize and compare identically.
type Diffs struct {
	keys []string
	vals map[string]any
}

// ParseDiffs decodes a serialized diff payload. An empty payload decodes
// to an empty set. When includeMetadata is false the @source entry is
// dropped from the top level.
func ParseDiffs(payload []byte, includeMetadata bool) (*Diffs, error) {
	if len(payload) == 0 {
		return newDiffs(nil), nil
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDiff, err)
	}
	if !includeMetadata {
		delete(raw, SourceMetadataKey)
	}
	return newDiffs(raw), nil
}

func newDiffs(raw map[string]any) *Diffs {
	d := &Diffs{
		keys: make([]string, 0, len(raw)),
		vals: make(map[string]any, len(raw)),
	}
	for k, v := range raw {
		d.keys = append(d.keys, k)
		d.vals[k] = canonical(v)
	}
	sort.Strings(d.keys)
	return d
}

// canonical rewrites nested objects as Diffs so key ordering holds at
// every level, not just the top one.
func canonical(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return newDiffs(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = canonical(e)
		}
		return out
	default:
		return v
	}
}

// Len returns the number of top-level diff keys.
func (d *Diffs) Len() int {
	return len(d.keys)
}

// Keys returns the top-level keys in their sorted order.
func (d *Diffs) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Get returns the value stored under key. Nested objects come back as
// *Diffs, nested arrays as []any.
func (d *Diffs) Get(key string) (any, bool) {
	v, ok := d.vals[key]
	return v, ok
}

// Equal reports whether two diff sets carry the same keys and values.
func (d *Diffs) Equal(other *Diffs) bool {
	if d == nil || other == nil {
		return d == other
	}
	a, err := d.MarshalJSON()
	if err != nil {
		return false
	}
	b, err := other.MarshalJSON()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// MarshalJSON writes the diff set as a JSON object with keys in sorted
// order at every nesting level.
func (d *Diffs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
