// api/schemas/act.go
package schemas

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// ActType names one kind of instruction in a script.
type ActType string

const (
	ActLaunch   ActType = "launch"
	ActURL      ActType = "url"
	ActWait     ActType = "wait"
	ActState    ActType = "state"
	ActPage     ActType = "page"
	ActReveal   ActType = "reveal"
	ActButton   ActType = "button"
	ActCheckbox ActType = "checkbox"
	ActRadio    ActType = "radio"
	ActFocus    ActType = "focus"
	ActLink     ActType = "link"
	ActSelect   ActType = "select"
	ActText     ActType = "text"
	ActPress    ActType = "press"
	ActPresses  ActType = "presses"
	ActTest     ActType = "test"
	ActScore    ActType = "score"
	ActNext     ActType = "next"
)

// MoveTypes are the act types that resolve an on-page target before interacting with it.
var MoveTypes = []ActType{ActButton, ActCheckbox, ActRadio, ActFocus, ActLink, ActSelect, ActText}

// IsMove reports whether t targets an element through the resolver.
func (t ActType) IsMove() bool {
	for _, m := range MoveTypes {
		if m == t {
			return true
		}
	}
	return false
}

// Reserved keys of the flattened act object. Everything else is a parameter.
const (
	keyType      = "type"
	keyResult    = "result"
	keyError     = "error"
	keyURL       = "url"
	keySynthetic = "synthetic"
)

// Act is one instruction of a script. Parameters are kept as a generic mapping so the
// validator can check them against the command schema; Result, Error and URL are the
// annotations written by the executor. On the wire an act is a single flat JSON object.
type Act struct {
	Type   ActType
	Params map[string]any

	Result any
	Error  string
	URL    string

	// Synthetic marks an act inserted by the driver rather than authored in the script.
	Synthetic bool
}

// NewAct builds an act of the given type with a copy of params.
func NewAct(t ActType, params map[string]any) *Act {
	a := &Act{Type: t, Params: map[string]any{}}
	for k, v := range params {
		a.Params[k] = DeepCopy(v)
	}
	return a
}

// MarshalJSON flattens the act into a single object.
func (a Act) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Params)+5)
	for k, v := range a.Params {
		out[k] = v
	}
	out[keyType] = a.Type
	if a.Result != nil {
		out[keyResult] = a.Result
	}
	if a.Error != "" {
		out[keyError] = a.Error
	}
	if a.URL != "" {
		out[keyURL] = a.URL
	}
	if a.Synthetic {
		out[keySynthetic] = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat object into type, parameters and annotations.
func (a *Act) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("act is not a JSON object: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("act must be an object, got null")
	}
	t, _ := raw[keyType].(string)
	a.Type = ActType(t)
	a.Result = raw[keyResult]
	a.Error, _ = raw[keyError].(string)
	a.URL, _ = raw[keyURL].(string)
	a.Synthetic, _ = raw[keySynthetic].(bool)

	a.Params = make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case keyType, keyResult, keyError, keyURL, keySynthetic:
			continue
		}
		a.Params[k] = v
	}
	return nil
}

// Has reports whether the parameter is present.
func (a *Act) Has(name string) bool {
	_, ok := a.Params[name]
	return ok
}

// String returns a string parameter.
func (a *Act) String(name string) (string, bool) {
	s, ok := a.Params[name].(string)
	return s, ok
}

// StringOr returns a string parameter or def when absent or mistyped.
func (a *Act) StringOr(name, def string) string {
	if s, ok := a.String(name); ok {
		return s
	}
	return def
}

// Int returns a numeric parameter truncated to an int.
func (a *Act) Int(name string) (int, bool) {
	switch n := a.Params[name].(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// Bool returns a boolean parameter.
func (a *Act) Bool(name string) bool {
	b, _ := a.Params[name].(bool)
	return b
}

// Name is the optional jump label of the act.
func (a *Act) Name() string {
	return a.StringOr("name", "")
}

// Executed reports whether the executor has annotated the act.
func (a *Act) Executed() bool {
	return a.Result != nil || a.Error != ""
}

// Clone deep-copies the act including its annotations.
func (a *Act) Clone() *Act {
	c := NewAct(a.Type, a.Params)
	c.Result = DeepCopy(a.Result)
	c.Error = a.Error
	c.URL = a.URL
	c.Synthetic = a.Synthetic
	return c
}

// Strip returns a copy of the act without execution annotations.
func (a *Act) Strip() *Act {
	c := NewAct(a.Type, a.Params)
	c.Synthetic = a.Synthetic
	return c
}

// DeepCopy copies a generic JSON-shaped value. Values of other types are returned as is.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = DeepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = DeepCopy(e)
		}
		return s
	default:
		return v
	}
}

// Generic converts any value into its JSON-shaped equivalent (maps, slices, float64,
// string, bool, nil) so results can be indexed by property path and compared.
func Generic(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
