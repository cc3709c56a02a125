// internal/command/command.go
package command

import (
	"fmt"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/condition"
)

// Command is the typed form of a validated act. The set of implementations is closed.
type Command interface {
	isCommand()
}

type Launch struct{ Engine string }

type Visit struct{ URL string }

// WaitTarget names the observable a Wait polls.
type WaitTarget string

const (
	WaitURL   WaitTarget = "url"
	WaitTitle WaitTarget = "title"
	WaitBody  WaitTarget = "body"
)

type Wait struct {
	Target WaitTarget
	Text   string
}

// LoadState is the lifecycle condition a State waits for.
type LoadState string

const (
	StateLoaded LoadState = "loaded"
	StateIdle   LoadState = "idle"
)

type State struct{ Which LoadState }

type NewPage struct{}

type Reveal struct{}

// Move targets one element through the resolver and interacts with it.
type Move struct {
	Kind     schemas.ActType
	Which    string
	Index    int
	HasIndex bool
	Selector string
	// Value is the text entered by a text move.
	Value string
	// Option is the option text chosen by a select move.
	Option string
}

type Press struct {
	Key   string
	Again int
}

// Presses walks focus with NavKey until an element matching Tag and Text is focused.
type Presses struct {
	NavKey   string
	Tag      string
	Text     string
	TypeText string
	Action   string
}

type Test struct {
	Which  string
	Expect []condition.Condition
	// Args are the parameters declared by the test's own sub-schema.
	Args map[string]any
}

type Score struct{ Which string }

type Next struct {
	If   condition.Condition
	Stop bool
	Jump int
	// Target is the name of the act to continue at.
	Target string
}

func (Launch) isCommand()  {}
func (Visit) isCommand()   {}
func (Wait) isCommand()    {}
func (State) isCommand()   {}
func (NewPage) isCommand() {}
func (Reveal) isCommand()  {}
func (Move) isCommand()    {}
func (Press) isCommand()   {}
func (Presses) isCommand() {}
func (Test) isCommand()    {}
func (Score) isCommand()   {}
func (Next) isCommand()    {}

// defaultSelectors are the candidate sets of each move kind.
var defaultSelectors = map[schemas.ActType]string{
	schemas.ActButton:   `button, input[type="button"], input[type="submit"], input[type="reset"], [role="button"]`,
	schemas.ActCheckbox: `input[type="checkbox"]`,
	schemas.ActRadio:    `input[type="radio"]`,
	schemas.ActFocus:    `a, button, input, select, textarea, [tabindex]`,
	schemas.ActLink:     `a`,
	schemas.ActSelect:   `select`,
	schemas.ActText:     `input:not([type]), input[type="text"], input[type="email"], input[type="password"], input[type="search"], input[type="tel"], input[type="url"], input[type="number"], textarea`,
}

// DefaultSelector returns the candidate selector of a move kind.
func DefaultSelector(kind schemas.ActType) string {
	return defaultSelectors[kind]
}

// reservedTestParams are the test act parameters that are not passed to the plugin.
var reservedTestParams = map[string]bool{"type": true, "which": true, "expect": true, "what": true, "name": true}

// Parse converts an act into its typed command. The act should have passed CheckAct;
// Parse still reports structural problems rather than panicking.
func Parse(a *schemas.Act) (Command, error) {
	str := func(name string) string { return a.StringOr(name, "") }

	if a.Type.IsMove() {
		m := Move{
			Kind:     a.Type,
			Which:    str("which"),
			Selector: a.StringOr("selector", DefaultSelector(a.Type)),
			Value:    str("value"),
			Option:   str("option"),
		}
		m.Index, m.HasIndex = a.Int("index")
		return m, nil
	}

	switch a.Type {
	case schemas.ActLaunch:
		return Launch{Engine: str("which")}, nil
	case schemas.ActURL:
		return Visit{URL: str("which")}, nil
	case schemas.ActWait:
		return Wait{Target: WaitTarget(str("what")), Text: str("which")}, nil
	case schemas.ActState:
		return State{Which: LoadState(str("which"))}, nil
	case schemas.ActPage:
		return NewPage{}, nil
	case schemas.ActReveal:
		return Reveal{}, nil
	case schemas.ActPress:
		again, _ := a.Int("again")
		return Press{Key: str("which"), Again: again}, nil
	case schemas.ActPresses:
		return Presses{
			NavKey:   str("navKey"),
			Tag:      str("what"),
			Text:     str("which"),
			TypeText: str("text"),
			Action:   str("action"),
		}, nil
	case schemas.ActTest:
		t := Test{Which: str("which"), Args: map[string]any{}}
		if raw, ok := a.Params["expect"].([]any); ok {
			for i, item := range raw {
				c, err := condition.Parse(item)
				if err != nil {
					return nil, fmt.Errorf("expectation %d: %w", i, err)
				}
				t.Expect = append(t.Expect, c)
			}
		}
		for k, v := range a.Params {
			if !reservedTestParams[k] {
				t.Args[k] = schemas.DeepCopy(v)
			}
		}
		return t, nil
	case schemas.ActScore:
		return Score{Which: str("which")}, nil
	case schemas.ActNext:
		c, err := condition.Parse(a.Params["if"])
		if err != nil {
			return nil, err
		}
		jump, _ := a.Int("jump")
		return Next{If: c, Stop: a.Bool("stop"), Jump: jump, Target: str("next")}, nil
	}
	return nil, fmt.Errorf("invalid command type %q", a.Type)
}
