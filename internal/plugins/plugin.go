// internal/plugins/plugin.go
package plugins

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/browser"
	"github.com/xkilldash9x/pagecheck/internal/command"
)

// Test is a named check run by a test act against the current page. The result must be
// JSON-shaped so expectations can index it by property path.
type Test interface {
	Name() string
	Description() string
	// Params is the test's own parameter sub-schema.
	Params() map[string]command.Param
	// MutatesDOM reports whether the test leaves the page altered.
	MutatesDOM() bool
	Run(ctx context.Context, page browser.Page, args map[string]any) (any, error)
}

// Scorer summarizes the acts of a report.
type Scorer interface {
	Name() string
	Score(acts []*schemas.Act) (any, error)
}

// BaseTest carries the descriptive fields of a Test. It is embedded by the built-ins.
type BaseTest struct {
	name        string
	description string
	params      map[string]command.Param
	mutates     bool
}

// NewBaseTest creates a BaseTest.
func NewBaseTest(name, description string, params map[string]command.Param, mutates bool) BaseTest {
	if params == nil {
		params = map[string]command.Param{}
	}
	return BaseTest{name: name, description: description, params: params, mutates: mutates}
}

func (b BaseTest) Name() string                     { return b.name }
func (b BaseTest) Description() string              { return b.description }
func (b BaseTest) Params() map[string]command.Param { return b.params }
func (b BaseTest) MutatesDOM() bool                 { return b.mutates }

// PanicError is returned when a plugin panics.
type PanicError struct {
	Plugin string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("plugin %s panicked: %v\n%s", e.Plugin, e.Value, e.Stack)
}

// Registry holds the tests and scorers a script may name. It implements command.Catalog.
type Registry struct {
	tests   map[string]Test
	scorers map[string]Scorer
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		tests:   map[string]Test{},
		scorers: map[string]Scorer{},
		logger:  logger.Named("plugins"),
	}
}

// NewDefaultRegistry creates a registry holding the built-in plugins.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.RegisterTest(NewTitleTest())
	r.RegisterTest(NewElementsTest())
	r.RegisterTest(NewFocusablesTest())
	r.RegisterScorer(NewSummaryScorer())
	return r
}

// RegisterTest adds or replaces a test.
func (r *Registry) RegisterTest(t Test) {
	r.tests[t.Name()] = t
}

// RegisterScorer adds or replaces a scorer.
func (r *Registry) RegisterScorer(s Scorer) {
	r.scorers[s.Name()] = s
}

// TestParams implements command.Catalog.
func (r *Registry) TestParams(name string) (map[string]command.Param, bool) {
	t, ok := r.tests[name]
	if !ok {
		return nil, false
	}
	return t.Params(), true
}

// HasScorer implements command.Catalog.
func (r *Registry) HasScorer(name string) bool {
	_, ok := r.scorers[name]
	return ok
}

// MutatesDOM reports whether the named test alters the page.
func (r *Registry) MutatesDOM(name string) bool {
	t, ok := r.tests[name]
	return ok && t.MutatesDOM()
}

// TestNames lists the registered tests in sorted order.
func (r *Registry) TestNames() []string {
	names := make([]string, 0, len(r.tests))
	for n := range r.tests {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunTest invokes a test. A panic inside the test is returned as a *PanicError.
func (r *Registry) RunTest(ctx context.Context, name string, page browser.Page, args map[string]any) (result any, err error) {
	t, ok := r.tests[name]
	if !ok {
		return nil, fmt.Errorf("unknown test %q", name)
	}
	defer func() {
		if p := recover(); p != nil {
			err = r.recovered(name, p)
		}
	}()
	return t.Run(ctx, page, args)
}

// RunScorer invokes a scorer. A panic inside the scorer is returned as a *PanicError.
func (r *Registry) RunScorer(name string, acts []*schemas.Act) (result any, err error) {
	s, ok := r.scorers[name]
	if !ok {
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
	defer func() {
		if p := recover(); p != nil {
			err = r.recovered(name, p)
		}
	}()
	return s.Score(acts)
}

func (r *Registry) recovered(name string, p any) error {
	stack := debug.Stack()
	r.logger.Error("Plugin panicked.",
		zap.String("plugin", name),
		zap.Any("panic_value", p),
		zap.String("stack", string(stack)))
	return &PanicError{Plugin: name, Value: p, Stack: stack}
}

var _ command.Catalog = (*Registry)(nil)
