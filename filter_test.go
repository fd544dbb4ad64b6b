package audittrail_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ostraca/audittrail"
)

func TestSimpleFilter_ScalarSQL(t *testing.T) {
	f := audittrail.NewSimpleFilter("object_id", "17")

	frag, params := f.ToSQL("object_id_0")
	if frag != "object_id = @object_id_0" {
		t.Errorf("fragment = %q", frag)
	}
	if params["object_id_0"] != "17" {
		t.Errorf("params = %v", params)
	}
}

func TestSimpleFilter_ListSQL(t *testing.T) {
	f := audittrail.NewSimpleFilter("type", []string{"insert", "update"})

	frag, params := f.ToSQL("type_0")
	if frag != "type = ANY(@type_0)" {
		t.Errorf("fragment = %q", frag)
	}
	list, ok := params["type_0"].([]any)
	if !ok {
		t.Fatalf("param = %T, want []any", params["type_0"])
	}
	if len(list) != 2 || list[0] != "insert" || list[1] != "update" {
		t.Errorf("param values = %v", list)
	}
}

func TestMergeSimpleFilters_UnionsValues(t *testing.T) {
	a := audittrail.NewSimpleFilter("id", []int{1})
	b := audittrail.NewSimpleFilter("id", []int{2})

	merged, err := audittrail.MergeSimpleFilters(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frag, params := merged.ToSQL("id_0")
	if frag != "id = ANY(@id_0)" {
		t.Errorf("fragment = %q", frag)
	}
	list, ok := params["id_0"].([]any)
	if !ok {
		t.Fatalf("param = %T, want []any", params["id_0"])
	}
	if len(list) != 2 || list[0] != 1 || list[1] != 2 {
		t.Errorf("union = %v, want [1 2]", list)
	}
}

func TestMergeSimpleFilters_ScalarsJoinTheUnion(t *testing.T) {
	a := audittrail.NewSimpleFilter("blame_id", int64(3))
	b := audittrail.NewSimpleFilter("blame_id", []int64{4, 5})

	merged, err := audittrail.MergeSimpleFilters(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, ok := merged.Value().([]any)
	if !ok {
		t.Fatalf("Value = %T, want []any", merged.Value())
	}
	if len(list) != 3 {
		t.Errorf("union size = %d, want 3", len(list))
	}
}

func TestMergeSimpleFilters_SingleKeepsShape(t *testing.T) {
	only := audittrail.NewSimpleFilter("ip", "10.0.0.1")

	merged, err := audittrail.MergeSimpleFilters(only)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frag, _ := merged.ToSQL("ip_0")
	if frag != "ip = @ip_0" {
		t.Errorf("fragment = %q, want scalar equality", frag)
	}
}

func TestMergeSimpleFilters_Errors(t *testing.T) {
	if _, err := audittrail.MergeSimpleFilters(); !errors.Is(err, audittrail.ErrEmptyFilter) {
		t.Errorf("empty merge error = %v, want ErrEmptyFilter", err)
	}

	a := audittrail.NewSimpleFilter("id", 1)
	b := audittrail.NewSimpleFilter("type", "insert")
	if _, err := audittrail.MergeSimpleFilters(a, b); err == nil {
		t.Error("expected error merging filters across fields")
	}
}

func TestRangeFilter_BothBounds(t *testing.T) {
	f, err := audittrail.NewRangeFilter("id", 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frag, params := f.ToSQL("id_0")
	if frag != "id BETWEEN @id_0_min AND @id_0_max" {
		t.Errorf("fragment = %q", frag)
	}
	if params["id_0_min"] != 10 || params["id_0_max"] != 20 {
		t.Errorf("params = %v", params)
	}
}

func TestRangeFilter_OneSided(t *testing.T) {
	lower, err := audittrail.NewRangeFilter("id", 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frag, params := lower.ToSQL("id_0")
	if frag != "id >= @id_0_min" {
		t.Errorf("lower fragment = %q", frag)
	}
	if _, ok := params["id_0_max"]; ok {
		t.Error("lower-only filter must not bind a max parameter")
	}

	upper, err := audittrail.NewRangeFilter("id", nil, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frag, params = upper.ToSQL("id_1")
	if frag != "id <= @id_1_max" {
		t.Errorf("upper fragment = %q", frag)
	}
	if params["id_1_max"] != 20 {
		t.Errorf("params = %v", params)
	}
}

func TestRangeFilter_RequiresABound(t *testing.T) {
	_, err := audittrail.NewRangeFilter("id", nil, nil)
	if !errors.Is(err, audittrail.ErrEmptyFilter) {
		t.Errorf("error = %v, want ErrEmptyFilter", err)
	}
}

func TestDateRangeFilter_NormalizeResolvesStrings(t *testing.T) {
	f, err := audittrail.NewDateRangeFilter("created_at", "2025-03-01", "2025-03-31 23:59:59")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("loading location: %v", err)
	}

	resolved, err := f.Normalize(loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	minBound, ok := resolved.Min().(time.Time)
	if !ok {
		t.Fatalf("Min = %T, want time.Time", resolved.Min())
	}
	if minBound.Location() != loc {
		t.Errorf("Min location = %v, want %v", minBound.Location(), loc)
	}
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, loc)
	if !minBound.Equal(want) {
		t.Errorf("Min = %v, want %v", minBound, want)
	}

	maxBound, ok := resolved.Max().(time.Time)
	if !ok {
		t.Fatalf("Max = %T, want time.Time", resolved.Max())
	}
	if maxBound.Hour() != 23 || maxBound.Minute() != 59 {
		t.Errorf("Max = %v", maxBound)
	}
}

func TestDateRangeFilter_NormalizeConvertsInstants(t *testing.T) {
	utc := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f, err := audittrail.NewDateRangeFilter("created_at", utc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loc, _ := time.LoadLocation("Europe/Paris")
	resolved, err := f.Normalize(loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	minBound := resolved.Min().(time.Time)
	if !minBound.Equal(utc) {
		t.Errorf("Min instant changed: %v vs %v", minBound, utc)
	}
	if minBound.Location() != loc {
		t.Errorf("Min location = %v, want %v", minBound.Location(), loc)
	}
}

func TestDateRangeFilter_RejectsBadBounds(t *testing.T) {
	if _, err := audittrail.NewDateRangeFilter("created_at", nil, nil); !errors.Is(err, audittrail.ErrEmptyFilter) {
		t.Errorf("error = %v, want ErrEmptyFilter", err)
	}

	if _, err := audittrail.NewDateRangeFilter("created_at", 3.14, nil); err == nil {
		t.Error("expected error for non-timestamp bound")
	}

	f, err := audittrail.NewDateRangeFilter("created_at", "not a date", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.Normalize(time.UTC); err == nil {
		t.Error("expected error normalizing an unparseable bound")
	}
}

func TestFilterKinds(t *testing.T) {
	simple := audittrail.NewSimpleFilter("id", 1)
	if simple.Kind() != audittrail.KindSimple {
		t.Errorf("simple kind = %v", simple.Kind())
	}

	rng, _ := audittrail.NewRangeFilter("id", 1, 2)
	if rng.Kind() != audittrail.KindRange {
		t.Errorf("range kind = %v", rng.Kind())
	}

	dr, _ := audittrail.NewDateRangeFilter("created_at", "2025-01-01", nil)
	if dr.Kind() != audittrail.KindDateRange {
		t.Errorf("date range kind = %v", dr.Kind())
	}
}
