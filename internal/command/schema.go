// internal/command/schema.go
package command

import (
	"sort"

	"github.com/xkilldash9x/pagecheck/api/schemas"
)

// Primitive is the JSON type a parameter must have.
type Primitive string

const (
	String  Primitive = "string"
	Number  Primitive = "number"
	Boolean Primitive = "boolean"
	Array   Primitive = "array"
	Object  Primitive = "object"
)

// Subtype names a semantic predicate applied after the primitive type check.
type Subtype string

const (
	IsURL          Subtype = "isURL"
	IsEngine       Subtype = "isBrowserType"
	IsNonEmpty     Subtype = "hasLength"
	IsState        Subtype = "isState"
	IsWaitTarget   Subtype = "isWaitable"
	IsKey          Subtype = "isKey"
	IsNavKey       Subtype = "isNavKey"
	IsNonNegative  Subtype = "isNonNegative"
	IsPositive     Subtype = "isPositive"
	IsCondition    Subtype = "isCondition"
	IsExpectations Subtype = "areExpectations"
	IsTest         Subtype = "isTest"
	IsScorer       Subtype = "isScorer"
	IsTagName      Subtype = "isTagName"
	IsSelector     Subtype = "isSelector"
)

// Param specifies one act parameter.
type Param struct {
	Required    bool
	Type        Primitive
	Subtype     Subtype
	Description string
}

// Entry is the schema of one act type.
type Entry struct {
	Type        schemas.ActType
	Description string
	Params      map[string]Param
}

// Parameters every act may carry.
var commonParams = map[string]Param{
	"what": {Type: String, Description: "Description of the act"},
	"name": {Type: String, Subtype: IsNonEmpty, Description: "Label a next act can jump to"},
}

var moveParams = map[string]Param{
	"which":    {Type: String, Description: "Text the target's effective text must contain"},
	"index":    {Type: Number, Subtype: IsNonNegative, Description: "0-based position among matching targets"},
	"selector": {Type: String, Subtype: IsSelector, Description: "CSS selector replacing the default for the act type"},
}

func withMove(extra map[string]Param) map[string]Param {
	out := make(map[string]Param, len(moveParams)+len(extra))
	for k, v := range moveParams {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var registry = map[schemas.ActType]Entry{
	schemas.ActLaunch: {
		Description: "Launch a browser engine",
		Params:      map[string]Param{"which": {Required: true, Type: String, Subtype: IsEngine, Description: "Engine name"}},
	},
	schemas.ActURL: {
		Description: "Visit a URL",
		Params:      map[string]Param{"which": {Required: true, Type: String, Subtype: IsURL, Description: "URL to visit"}},
	},
	schemas.ActWait: {
		Description: "Wait until the URL, title or body contains text",
		Params: map[string]Param{
			"what":  {Required: true, Type: String, Subtype: IsWaitTarget, Description: "url, title or body"},
			"which": {Required: true, Type: String, Subtype: IsNonEmpty, Description: "Text to wait for"},
		},
	},
	schemas.ActState: {
		Description: "Wait for a page load state",
		Params:      map[string]Param{"which": {Required: true, Type: String, Subtype: IsState, Description: "loaded or idle"}},
	},
	schemas.ActPage: {
		Description: "Switch to a newly opened tab",
		Params:      map[string]Param{},
	},
	schemas.ActReveal: {
		Description: "Make every element displayed and visible",
		Params:      map[string]Param{},
	},
	schemas.ActButton: {
		Description: "Click a button",
		Params:      withMove(nil),
	},
	schemas.ActCheckbox: {
		Description: "Check a checkbox",
		Params:      withMove(nil),
	},
	schemas.ActRadio: {
		Description: "Check a radio button",
		Params:      withMove(nil),
	},
	schemas.ActFocus: {
		Description: "Focus an element",
		Params:      withMove(nil),
	},
	schemas.ActLink: {
		Description: "Click a link",
		Params:      withMove(nil),
	},
	schemas.ActSelect: {
		Description: "Choose an option of a select list",
		Params: withMove(map[string]Param{
			"option": {Required: true, Type: String, Subtype: IsNonEmpty, Description: "Text of the option to choose"},
		}),
	},
	schemas.ActText: {
		Description: "Enter text into a field",
		Params: withMove(map[string]Param{
			"value": {Required: true, Type: String, Description: "Text to enter"},
		}),
	},
	schemas.ActPress: {
		Description: "Press a key",
		Params: map[string]Param{
			"which": {Required: true, Type: String, Subtype: IsKey, Description: "Key name"},
			"again": {Type: Number, Subtype: IsNonNegative, Description: "Additional presses"},
		},
	},
	schemas.ActPresses: {
		Description: "Navigate by keypresses to an element and operate on it",
		Params: map[string]Param{
			"navKey": {Required: true, Type: String, Subtype: IsNavKey, Description: "Key that moves focus"},
			"what":   {Type: String, Subtype: IsTagName, Description: "Tag name of the element to reach"},
			"which":  {Type: String, Description: "Text the reached element must contain"},
			"text":   {Type: String, Description: "Text to enter once reached"},
			"action": {Type: String, Subtype: IsKey, Description: "Key to press once reached"},
		},
	},
	schemas.ActTest: {
		Description: "Run a named test",
		Params: map[string]Param{
			"which":  {Required: true, Type: String, Subtype: IsTest, Description: "Test name"},
			"expect": {Type: Array, Subtype: IsExpectations, Description: "Conditions the result must meet"},
		},
	},
	schemas.ActScore: {
		Description: "Score the preceding acts",
		Params:      map[string]Param{"which": {Required: true, Type: String, Subtype: IsScorer, Description: "Scorer name"}},
	},
	schemas.ActNext: {
		Description: "Jump when a condition on a prior result holds",
		Params: map[string]Param{
			"if":   {Required: true, Type: Array, Subtype: IsCondition, Description: "[path, relation, criterion]"},
			"stop": {Type: Boolean, Description: "Halt the script"},
			"jump": {Type: Number, Subtype: IsPositive, Description: "Acts to move forward"},
			"next": {Type: String, Subtype: IsNonEmpty, Description: "Name of the act to continue at"},
		},
	},
}

func init() {
	for t, e := range registry {
		e.Type = t
		registry[t] = e
	}
}

// Lookup returns the schema entry of an act type.
func Lookup(t schemas.ActType) (Entry, bool) {
	e, ok := registry[t]
	return e, ok
}

// Types lists the known act types in sorted order.
func Types() []schemas.ActType {
	out := make([]schemas.ActType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// paramsOf merges the common parameters under an entry's own. An entry overrides a common
// parameter of the same name, as wait and presses do with what.
func paramsOf(e Entry) map[string]Param {
	out := make(map[string]Param, len(commonParams)+len(e.Params))
	for k, v := range commonParams {
		out[k] = v
	}
	for k, v := range e.Params {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]Param) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
