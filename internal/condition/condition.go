// internal/condition/condition.go
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Relation is one of the closed set of comparison operators a condition can apply.
type Relation string

const (
	Equal    Relation = "="
	Less     Relation = "<"
	Greater  Relation = ">"
	NotEqual Relation = "!="
	Defined  Relation = "defined"
)

// Valid reports whether r is a known relation.
func (r Relation) Valid() bool {
	switch r {
	case Equal, Less, Greater, NotEqual, Defined:
		return true
	}
	return false
}

// Path is a sequence of field-access steps into a generic value. A step indexes a map by
// key, or a slice when it is a non-negative integer.
type Path []string

// ParsePath splits a dotted path such as "totals.violations.0".
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("empty property path")
	}
	steps := strings.Split(s, ".")
	for i, step := range steps {
		if step == "" {
			return nil, fmt.Errorf("property path %q has an empty step at position %d", s, i)
		}
	}
	return Path(steps), nil
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Lookup walks v along the path. The second result is false when any step is missing.
func (p Path) Lookup(v any) (any, bool) {
	cur := v
	for _, step := range p {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[step]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(step)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Condition is a typed property-path expression: Path Relation Criterion.
type Condition struct {
	Path      Path
	Relation  Relation
	Criterion any
}

// Parse reads the script form [path, relation, criterion]. The criterion may be omitted
// only for the defined relation, where a false criterion asks for the path to be absent.
func Parse(raw any) (Condition, error) {
	items, ok := raw.([]any)
	if !ok {
		return Condition{}, fmt.Errorf("condition must be an array, got %T", raw)
	}
	if len(items) < 2 || len(items) > 3 {
		return Condition{}, fmt.Errorf("condition must have 2 or 3 elements, got %d", len(items))
	}
	pathStr, ok := items[0].(string)
	if !ok {
		return Condition{}, fmt.Errorf("condition path must be a string, got %T", items[0])
	}
	path, err := ParsePath(pathStr)
	if err != nil {
		return Condition{}, err
	}
	relStr, ok := items[1].(string)
	if !ok || !Relation(relStr).Valid() {
		return Condition{}, fmt.Errorf("unknown relation %v", items[1])
	}
	c := Condition{Path: path, Relation: Relation(relStr)}
	if len(items) == 3 {
		c.Criterion = items[2]
	} else if c.Relation != Defined {
		return Condition{}, fmt.Errorf("relation %q needs a criterion", c.Relation)
	}
	if c.Relation == Defined && c.Criterion != nil {
		if _, ok := c.Criterion.(bool); !ok {
			return Condition{}, fmt.Errorf("criterion of defined must be a boolean, got %T", c.Criterion)
		}
	}
	return c, nil
}

// Outcome is the evaluation record of a condition against a value.
type Outcome struct {
	Actual any
	Found  bool
	Holds  bool
}

// Evaluate applies the condition to v.
func (c Condition) Evaluate(v any) Outcome {
	actual, found := c.Path.Lookup(v)
	o := Outcome{Actual: actual, Found: found}

	switch c.Relation {
	case Defined:
		want := true
		if b, ok := c.Criterion.(bool); ok {
			want = b
		}
		o.Holds = (found && actual != nil) == want
	case Equal:
		o.Holds = found && equal(actual, c.Criterion)
	case NotEqual:
		o.Holds = !found || !equal(actual, c.Criterion)
	case Less:
		n, ok := compare(actual, c.Criterion)
		o.Holds = found && ok && n < 0
	case Greater:
		n, ok := compare(actual, c.Criterion)
		o.Holds = found && ok && n > 0
	}
	return o
}

// Record renders the outcome the way it is stored on an act.
func (c Condition) Record(o Outcome) map[string]any {
	rec := map[string]any{
		"property": c.Path.String(),
		"relation": string(c.Relation),
		"actual":   o.Actual,
		"passed":   o.Holds,
	}
	if c.Criterion != nil {
		rec["criterion"] = c.Criterion
	}
	return rec
}

func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return cmp.Equal(a, b)
}

// compare orders two numbers or two strings. ok is false for mixed or unordered operands,
// which no ordering relation accepts.
func compare(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
