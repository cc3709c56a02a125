// internal/condition/condition_test.go
package condition

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	p, err := ParsePath("totals.violations.0")
	require.NoError(t, err)
	assert.Equal(t, Path{"totals", "violations", "0"}, p)
	assert.Equal(t, "totals.violations.0", p.String())

	_, err = ParsePath("")
	assert.Error(t, err)
	_, err = ParsePath("a..b")
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	v := map[string]any{
		"count": float64(3),
		"items": []any{map[string]any{"id": "first"}, "second"},
		"empty": nil,
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"count", float64(3), true},
		{"items.0.id", "first", true},
		{"items.1", "second", true},
		{"items.2", nil, false},
		{"items.-1", nil, false},
		{"items.x", nil, false},
		{"count.deeper", nil, false},
		{"empty", nil, true},
		{"missing", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			p, err := ParsePath(tc.path)
			require.NoError(t, err)
			got, found := p.Lookup(v)
			assert.Equal(t, tc.found, found)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("Full", func(t *testing.T) {
		c, err := Parse([]any{"count", ">", float64(0)})
		require.NoError(t, err)
		want := Condition{Path: Path{"count"}, Relation: Greater, Criterion: float64(0)}
		if diff := cmp.Diff(want, c); diff != "" {
			t.Errorf("Parse mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("DefinedWithoutCriterion", func(t *testing.T) {
		c, err := Parse([]any{"title", "defined"})
		require.NoError(t, err)
		assert.Equal(t, Defined, c.Relation)
		assert.Nil(t, c.Criterion)
	})

	bad := map[string]any{
		"NotArray":          "count > 0",
		"TooShort":          []any{"count"},
		"TooLong":           []any{"count", "=", 1.0, 2.0},
		"PathNotString":     []any{1.0, "=", 1.0},
		"UnknownRelation":   []any{"count", "~", 1.0},
		"MissingCriterion":  []any{"count", "<"},
		"DefinedNonBoolean": []any{"count", "defined", "yes"},
	}
	for name, raw := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			assert.Error(t, err)
		})
	}
}

func TestEvaluate(t *testing.T) {
	result := map[string]any{
		"count": float64(3),
		"title": "Home",
		"flags": map[string]any{"ok": true},
		"none":  nil,
	}

	tests := []struct {
		name   string
		raw    []any
		holds  bool
		actual any
	}{
		{"GreaterHolds", []any{"count", ">", float64(0)}, true, float64(3)},
		{"GreaterFails", []any{"count", ">", float64(3)}, false, float64(3)},
		{"LessHolds", []any{"count", "<", float64(10)}, true, float64(3)},
		{"EqualNumber", []any{"count", "=", float64(3)}, true, float64(3)},
		{"EqualString", []any{"title", "=", "Home"}, true, "Home"},
		{"EqualBool", []any{"flags.ok", "=", true}, true, true},
		{"NotEqual", []any{"title", "!=", "About"}, true, "Home"},
		{"NotEqualMissing", []any{"absent", "!=", "x"}, true, nil},
		{"StringOrdering", []any{"title", "<", "Index"}, true, "Home"},
		{"MixedOrdering", []any{"title", ">", float64(1)}, false, "Home"},
		{"MissingNeverGreater", []any{"absent", ">", float64(-1)}, false, nil},
		{"Defined", []any{"title", "defined"}, true, "Home"},
		{"NullIsUndefined", []any{"none", "defined"}, false, nil},
		{"UndefinedWanted", []any{"absent", "defined", false}, true, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Parse(tc.raw)
			require.NoError(t, err)
			o := c.Evaluate(result)
			assert.Equal(t, tc.holds, o.Holds)
			assert.Equal(t, tc.actual, o.Actual)
		})
	}
}

func TestRecord(t *testing.T) {
	c, err := Parse([]any{"count", ">", float64(0)})
	require.NoError(t, err)
	rec := c.Record(c.Evaluate(map[string]any{"count": float64(3)}))
	assert.Equal(t, map[string]any{
		"property":  "count",
		"relation":  ">",
		"criterion": float64(0),
		"actual":    float64(3),
		"passed":    true,
	}, rec)
}
