// internal/command/validator.go
package command

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/browser"
	"github.com/xkilldash9x/pagecheck/internal/condition"
)

var (
	// ErrInvalidScript marks a script refused before any browser is launched.
	ErrInvalidScript = errors.New("invalid script")
	// ErrInvalidBatch marks a batch refused before any browser is launched.
	ErrInvalidBatch = errors.New("invalid batch")
)

// Catalog exposes the plugins a script may name.
type Catalog interface {
	// TestParams returns the extra parameters a named test accepts.
	TestParams(name string) (map[string]Param, bool)
	HasScorer(name string) bool
}

// Problem is one validation finding. Index is -1 for script-level problems.
type Problem struct {
	Index   int
	Message string
}

func (p Problem) String() string {
	if p.Index < 0 {
		return p.Message
	}
	return fmt.Sprintf("act %d: %s", p.Index, p.Message)
}

// Validator checks acts and scripts against the command schema. It never mutates its input.
type Validator struct {
	engines map[string]bool
	catalog Catalog
}

// NewValidator creates a validator accepting the given engine names and plugins.
func NewValidator(engines []string, catalog Catalog) *Validator {
	v := &Validator{engines: make(map[string]bool, len(engines)), catalog: catalog}
	for _, e := range engines {
		v.engines[e] = true
	}
	return v
}

// HasEngine reports whether name is a configured browser engine.
func (v *Validator) HasEngine(name string) bool {
	return v.engines[name]
}

// IsValidAct reports whether the act conforms to the schema.
func (v *Validator) IsValidAct(a *schemas.Act) bool {
	return len(v.CheckAct(a)) == 0
}

// CheckAct lists every reason the act is invalid.
func (v *Validator) CheckAct(a *schemas.Act) []string {
	if a == nil {
		return []string{"act is null"}
	}
	entry, ok := Lookup(a.Type)
	if !ok {
		return []string{fmt.Sprintf("invalid command type %q", a.Type)}
	}

	var problems []string
	params := paramsOf(entry)
	for _, name := range sortedKeys(params) {
		problems = append(problems, v.checkParam(name, params[name], a)...)
	}

	if a.Type == schemas.ActTest {
		which, _ := a.String("which")
		if extra, ok := v.testParams(which); ok {
			for _, name := range sortedKeys(extra) {
				if _, shadowed := params[name]; shadowed {
					continue
				}
				problems = append(problems, v.checkParam(name, extra[name], a)...)
			}
		}
	}

	if a.Type == schemas.ActNext {
		stop := a.Bool("stop")
		_, hasJump := a.Params["jump"]
		_, hasNext := a.Params["next"]
		if !stop && !hasJump && !hasNext {
			problems = append(problems, "next needs one of stop, jump or next")
		}
	}
	return problems
}

func (v *Validator) testParams(name string) (map[string]Param, bool) {
	if v.catalog == nil || name == "" {
		return nil, false
	}
	return v.catalog.TestParams(name)
}

func (v *Validator) checkParam(name string, p Param, a *schemas.Act) []string {
	val, present := a.Params[name]
	if !present {
		if p.Required {
			return []string{fmt.Sprintf("missing required parameter %q", name)}
		}
		return nil
	}
	if !hasPrimitive(val, p.Type) {
		return []string{fmt.Sprintf("parameter %q must be a %s, got %T", name, p.Type, val)}
	}
	if p.Subtype == "" {
		return nil
	}
	if err := v.checkSubtype(p.Subtype, val); err != nil {
		return []string{fmt.Sprintf("parameter %q: %v", name, err)}
	}
	return nil
}

func hasPrimitive(v any, p Primitive) bool {
	switch p {
	case String:
		_, ok := v.(string)
		return ok
	case Number:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case Boolean:
		_, ok := v.(bool)
		return ok
	case Array:
		_, ok := v.([]any)
		return ok
	case Object:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

var tagNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)

func (v *Validator) checkSubtype(s Subtype, val any) error {
	str, _ := val.(string)
	switch s {
	case IsURL:
		return ValidateURL(str)
	case IsEngine:
		if !v.engines[str] {
			return fmt.Errorf("%q is not a configured browser engine", str)
		}
	case IsNonEmpty:
		if strings.TrimSpace(str) == "" {
			return errors.New("must be non-empty")
		}
	case IsState:
		if str != "loaded" && str != "idle" {
			return fmt.Errorf("%q is not loaded or idle", str)
		}
	case IsWaitTarget:
		if str != "url" && str != "title" && str != "body" {
			return fmt.Errorf("%q is not url, title or body", str)
		}
	case IsKey:
		if !browser.IsKnownKey(str) {
			return fmt.Errorf("%q is not a known key", str)
		}
	case IsNavKey:
		if !browser.IsNavigationKey(str) {
			return fmt.Errorf("%q is not a navigation key", str)
		}
	case IsNonNegative:
		n, _ := toNumber(val)
		if n < 0 || n != float64(int(n)) {
			return errors.New("must be a non-negative integer")
		}
	case IsPositive:
		n, _ := toNumber(val)
		if n <= 0 || n != float64(int(n)) {
			return errors.New("must be a positive integer")
		}
	case IsCondition:
		if _, err := condition.Parse(val); err != nil {
			return err
		}
	case IsExpectations:
		items, _ := val.([]any)
		for i, item := range items {
			if _, err := condition.Parse(item); err != nil {
				return fmt.Errorf("expectation %d: %w", i, err)
			}
		}
	case IsTest:
		if _, ok := v.testParams(str); !ok {
			return fmt.Errorf("%q is not a known test", str)
		}
	case IsScorer:
		if v.catalog == nil || !v.catalog.HasScorer(str) {
			return fmt.Errorf("%q is not a known scorer", str)
		}
	case IsTagName:
		if !tagNamePattern.MatchString(str) {
			return fmt.Errorf("%q is not a tag name", str)
		}
	case IsSelector:
		if _, err := cascadia.Compile(str); err != nil {
			return fmt.Errorf("bad selector: %w", err)
		}
	default:
		return fmt.Errorf("unknown subtype %q", s)
	}
	return nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ValidateURL accepts absolute http, https and file URLs.
func ValidateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("URL %q has no host", s)
		}
	case "file":
		if u.Path == "" {
			return fmt.Errorf("URL %q has no path", s)
		}
	default:
		return fmt.Errorf("URL %q must use http, https or file", s)
	}
	return nil
}

// CheckScript lists every reason the script is invalid.
func (v *Validator) CheckScript(s *schemas.Script) []Problem {
	if s == nil {
		return []Problem{{Index: -1, Message: "script is null"}}
	}
	var problems []Problem
	if len(s.Commands) < 2 {
		problems = append(problems, Problem{Index: -1, Message: "script needs at least a launch and a url act"})
	}
	if len(s.Commands) > 0 && (s.Commands[0] == nil || s.Commands[0].Type != schemas.ActLaunch) {
		problems = append(problems, Problem{Index: 0, Message: "first act must be launch"})
	}
	if len(s.Commands) > 1 && (s.Commands[1] == nil || s.Commands[1].Type != schemas.ActURL) {
		problems = append(problems, Problem{Index: 1, Message: "second act must be url"})
	}

	names := make(map[string]int)
	for i, a := range s.Commands {
		for _, msg := range v.CheckAct(a) {
			problems = append(problems, Problem{Index: i, Message: msg})
		}
		if a == nil {
			continue
		}
		if name := a.Name(); name != "" {
			if prev, dup := names[name]; dup {
				problems = append(problems, Problem{Index: i, Message: fmt.Sprintf("name %q already used by act %d", name, prev)})
			} else {
				names[name] = i
			}
		}
	}

	// Jumps only move forward, so every act is annotated at most once.
	for i, a := range s.Commands {
		if a == nil || a.Type != schemas.ActNext {
			continue
		}
		if target, ok := a.String("next"); ok {
			at, known := names[target]
			switch {
			case !known:
				problems = append(problems, Problem{Index: i, Message: fmt.Sprintf("next names unknown act %q", target)})
			case at <= i:
				problems = append(problems, Problem{Index: i, Message: fmt.Sprintf("next target %q is not after this act", target)})
			}
		}
	}
	return problems
}

// IsValidScript reports whether the script may be run.
func (v *Validator) IsValidScript(s *schemas.Script) bool {
	return len(v.CheckScript(s)) == 0
}

// CheckBatch lists every reason the batch is invalid.
func (v *Validator) CheckBatch(b *schemas.Batch) []Problem {
	if b == nil {
		return []Problem{{Index: -1, Message: "batch is null"}}
	}
	var problems []Problem
	if len(b.Hosts) == 0 {
		problems = append(problems, Problem{Index: -1, Message: "batch has no hosts"})
	}
	for i, h := range b.Hosts {
		if h == nil {
			problems = append(problems, Problem{Index: -1, Message: fmt.Sprintf("host %d is null", i)})
			continue
		}
		if err := ValidateURL(h.Target); err != nil {
			problems = append(problems, Problem{Index: -1, Message: fmt.Sprintf("host %d: %v", i, err)})
		}
	}
	return problems
}

// Err folds problems into a single error wrapping sentinel, or nil.
func Err(sentinel error, problems []Problem) error {
	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.String()
	}
	return fmt.Errorf("%w: %s", sentinel, strings.Join(msgs, "; "))
}
