package audittrail

import (
	"fmt"
	"time"
)

// ---------- Filter contract ----------

// FilterKind discriminates filter variants during predicate compilation.
type FilterKind int

const (
	// KindSimple matches a field against one value or a set of values.
	KindSimple FilterKind = iota
	// KindRange matches a field against inclusive bounds.
	KindRange
	// KindDateRange matches a timestamp field against inclusive bounds.
	KindDateRange
)

// Params holds the named parameter bindings of one predicate fragment.
// Fragments reference them with the @name placeholder convention.
type Params map[string]any

// Filter renders itself as one predicate fragment over a single audit
// column. Implementations are immutable once constructed.
type Filter interface {
	// Kind tags the variant so compilation can group and merge filters
	// without inspecting concrete types.
	Kind() FilterKind
	// Name returns the audit column the filter applies to.
	Name() string
	// Value returns the comparison value: a scalar, or a list for
	// membership and range semantics.
	Value() any
	// ToSQL renders the predicate fragment and its bindings. The bind
	// argument is a caller-chosen parameter name base, unique per
	// fragment, so several filters on one field coexist in a statement.
	ToSQL(bind string) (string, Params)
}

// Compile-time interface checks.
var (
	_ Filter = (*SimpleFilter)(nil)
	_ Filter = (*RangeFilter)(nil)
	_ Filter = (*DateRangeFilter)(nil)
)

// ---------- Simple ----------

// SimpleFilter matches a field for equality against one value, or for
// membership when constructed with a list.
type SimpleFilter struct {
	name  string
	value any // scalar, or []any for membership semantics
}

// NewSimpleFilter builds an equality filter on name. Slice values of any
// supported element type turn the comparison into a membership test.
func NewSimpleFilter(name string, value any) *SimpleFilter {
	if list, ok := valueList(value); ok {
		value = list
	}
	return &SimpleFilter{name: name, value: value}
}

func (f *SimpleFilter) Kind() FilterKind { return KindSimple }

func (f *SimpleFilter) Name() string { return f.name }

func (f *SimpleFilter) Value() any { return f.value }

// ToSQL renders equality for a scalar and an ANY-membership test for a
// list, binding the whole list as one array-typed parameter.
func (f *SimpleFilter) ToSQL(bind string) (string, Params) {
	if list, ok := f.value.([]any); ok {
		return fmt.Sprintf("%s = ANY(@%s)", f.name, bind), Params{bind: list}
	}
	return fmt.Sprintf("%s = @%s", f.name, bind), Params{bind: f.value}
}

// MergeSimpleFilters unions several filters on one field into a single
// membership filter. Repeated equality filters on a field widen the
// match, they never narrow it.
func MergeSimpleFilters(filters ...*SimpleFilter) (*SimpleFilter, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("merging simple filters: %w", ErrEmptyFilter)
	}
	if len(filters) == 1 {
		return filters[0], nil
	}
	name := filters[0].name
	union := make([]any, 0, len(filters))
	for _, f := range filters {
		if f.name != name {
			return nil, fmt.Errorf("audittrail: merging filters across fields %q and %q", name, f.name)
		}
		if list, ok := f.value.([]any); ok {
			union = append(union, list...)
		} else {
			union = append(union, f.value)
		}
	}
	if len(union) == 0 {
		return nil, fmt.Errorf("merging simple filters on %q: %w", name, ErrEmptyFilter)
	}
	return &SimpleFilter{name: name, value: union}, nil
}

// ---------- Range ----------

// RangeFilter matches a field against inclusive bounds. Either bound may
// be absent, producing a one-sided comparison.
type RangeFilter struct {
	name     string
	min, max any
}

// NewRangeFilter builds a range filter on name. At least one bound must
// be given.
func NewRangeFilter(name string, min, max any) (*RangeFilter, error) {
	if min == nil && max == nil {
		return nil, fmt.Errorf("range filter on %q: %w", name, ErrEmptyFilter)
	}
	return &RangeFilter{name: name, min: min, max: max}, nil
}

func (f *RangeFilter) Kind() FilterKind { return KindRange }

func (f *RangeFilter) Name() string { return f.name }

// Value returns the bounds as a two-element list, absent bounds as nil.
func (f *RangeFilter) Value() any { return []any{f.min, f.max} }

// Min returns the inclusive lower bound, or nil.
func (f *RangeFilter) Min() any { return f.min }

// Max returns the inclusive upper bound, or nil.
func (f *RangeFilter) Max() any { return f.max }

func (f *RangeFilter) ToSQL(bind string) (string, Params) {
	switch {
	case f.min != nil && f.max != nil:
		return fmt.Sprintf("%s BETWEEN @%s_min AND @%s_max", f.name, bind, bind),
			Params{bind + "_min": f.min, bind + "_max": f.max}
	case f.min != nil:
		return fmt.Sprintf("%s >= @%s_min", f.name, bind), Params{bind + "_min": f.min}
	default:
		return fmt.Sprintf("%s <= @%s_max", f.name, bind), Params{bind + "_max": f.max}
	}
}

// ---------- DateRange ----------

// DateRangeFilter matches a timestamp field against inclusive bounds.
// Bounds arrive as time.Time values or strings; strings are resolved
// against the configured timezone when the query compiles.
type DateRangeFilter struct {
	RangeFilter
}

// NewDateRangeFilter builds a timestamp range filter on name. At least
// one bound must be given, and bounds must be instants or parseable
// strings.
func NewDateRangeFilter(name string, min, max any) (*DateRangeFilter, error) {
	if min == nil && max == nil {
		return nil, fmt.Errorf("date range filter on %q: %w", name, ErrEmptyFilter)
	}
	for _, bound := range []any{min, max} {
		switch bound.(type) {
		case nil, time.Time, string:
		default:
			return nil, fmt.Errorf("date range filter on %q: bound has type %T, want time.Time or string", name, bound)
		}
	}
	return &DateRangeFilter{RangeFilter{name: name, min: min, max: max}}, nil
}

func (f *DateRangeFilter) Kind() FilterKind { return KindDateRange }

// Normalize returns a copy of the filter with both bounds resolved to
// instants in loc.
func (f *DateRangeFilter) Normalize(loc *time.Location) (*DateRangeFilter, error) {
	min, err := resolveDateBound(f.min, loc)
	if err != nil {
		return nil, fmt.Errorf("field %q lower bound: %w", f.name, err)
	}
	max, err := resolveDateBound(f.max, loc)
	if err != nil {
		return nil, fmt.Errorf("field %q upper bound: %w", f.name, err)
	}
	return &DateRangeFilter{RangeFilter{name: f.name, min: min, max: max}}, nil
}

// dateLayouts are tried in order when a timestamp arrives as a string.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a storage timestamp in loc. It accepts the same
// layouts date range bounds accept: RFC 3339, date-time and plain date.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("audittrail: unparseable timestamp %q", s)
}

func resolveDateBound(v any, loc *time.Location) (any, error) {
	switch bound := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return bound.In(loc), nil
	case string:
		return ParseTimestamp(bound, loc)
	default:
		return nil, fmt.Errorf("audittrail: timestamp bound has type %T", v)
	}
}

// valueList normalizes supported slice types into []any. Scalars report
// false.
func valueList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, e := range list {
			out[i] = e
		}
		return out, true
	case []Operation:
		out := make([]any, len(list))
		for i, e := range list {
			out[i] = e
		}
		return out, true
	case []int:
		out := make([]any, len(list))
		for i, e := range list {
			out[i] = e
		}
		return out, true
	case []int64:
		out := make([]any, len(list))
		for i, e := range list {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}
