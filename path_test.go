package schemaless

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	doc := map[string]any{
		"k1": map[string]any{
			"k2": map[string]any{
				"k3": []any{int64(0), int64(1), int64(2)},
			},
		},
		"x1": map[string]any{
			"y1": map[string]any{"z1": "nugget"},
			"y2": map[string]any{"z2": "zaizee"},
		},
		"l1": []any{"a", []any{"b", "c"}, map[string]any{"k4": "v4"}},
		"n1": nil,
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"k1.k2.k3", []any{int64(0), int64(1), int64(2)}, true},
		{"k1.k2.k3[1]", int64(1), true},
		{"$.k1.k2.k3[2]", int64(2), true},
		{"x1.y1.z1", "nugget", true},
		{"$.x1.y2.z2", "zaizee", true},
		{"l1[0]", "a", true},
		{"l1[1][1]", "c", true},
		{"l1[2].k4", "v4", true},
		{"n1", nil, true},

		{"k1.k2.k3[7]", nil, false},
		{"k1.missing", nil, false},
		{"k1.k2.k3.k4", nil, false},
		{"x1.y1.z1[0]", nil, false},
		{"l1.k4", nil, false},
	}
	for _, tt := range tests {
		got, found := Extract(doc, tt.path)
		if found != tt.found || !reflect.DeepEqual(got, tt.want) {
			t.Errorf("** Extract(%q) = (%v, %v), wanted (%v, %v)", tt.path, got, found, tt.want, tt.found)
		}
	}
}

func TestExtractFromListRoot(t *testing.T) {
	doc := []any{[]any{[]any{int64(42)}}}
	got, found := Extract(doc, "$.[0][0][0]")
	if !found || got != int64(42) {
		t.Errorf("** got (%v, %v), wanted (42, true)", got, found)
	}

	_, found = Extract(doc, "$.[0][1]")
	if found {
		t.Errorf("** out-of-range index reported as found")
	}
}

func TestExtractFromTypedContainers(t *testing.T) {
	doc := map[string]any{
		"tags":  []string{"cat", "dog"},
		"stats": map[string]int{"age": 7},
	}
	got, found := Extract(doc, "tags[1]")
	if !found || got != "dog" {
		t.Errorf("** got (%v, %v), wanted (dog, true)", got, found)
	}
	got, found = Extract(doc, "stats.age")
	if !found || got != 7 {
		t.Errorf("** got (%v, %v), wanted (7, true)", got, found)
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, path := range []string{"", "$", "$.", "a..b", "a[", "a[]", "a[x]", "a[-1]", "a[0", "a[0]x[1]"} {
		if _, err := parsePath(path); err == nil {
			t.Errorf("** parsePath(%q) succeeded, wanted an error", path)
		}
	}
	for _, path := range []string{"a", "$.a", "a.b.c", "a[0]", "$.[0]", "a[0][1].b"} {
		if _, err := parsePath(path); err != nil {
			t.Errorf("** parsePath(%q) = %v, wanted success", path, err)
		}
	}
}
