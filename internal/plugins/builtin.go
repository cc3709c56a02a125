// internal/plugins/builtin.go
package plugins

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/browser"
	"github.com/xkilldash9x/pagecheck/internal/command"
)

// Keys a test act's result carries besides the plugin's own output.
const (
	ExpectationsKey        = "expectations"
	ExpectationFailuresKey = "expectationFailures"
)

// -- title --

type titleTest struct{ BaseTest }

// NewTitleTest reports the document title and URL.
func NewTitleTest() Test {
	return &titleTest{NewBaseTest("title", "Report the page title and URL", nil, false)}
}

func (t *titleTest) Run(ctx context.Context, page browser.Page, _ map[string]any) (any, error) {
	title, err := page.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read title: %w", err)
	}
	u, err := page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read url: %w", err)
	}
	return map[string]any{"title": title, "url": u, "empty": title == ""}, nil
}

// -- elements --

type elementInfo struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

const listElementsJS = `Array.from(document.querySelectorAll(%s)).map(el => ({
  tag: el.tagName.toLowerCase(),
  text: (el.innerText || el.textContent || "").trim().slice(0, 200)
}))`

type elementsTest struct{ BaseTest }

// NewElementsTest counts the elements matching a selector. detailLevel 1 adds a per-tag
// tally and 2 adds the element texts.
func NewElementsTest() Test {
	return &elementsTest{NewBaseTest("elements", "Count elements matching a selector", map[string]command.Param{
		"selector":    {Required: true, Type: command.String, Subtype: command.IsSelector, Description: "CSS selector"},
		"detailLevel": {Type: command.Number, Subtype: command.IsNonNegative, Description: "0 count, 1 tags, 2 texts"},
	}, false)}
}

func (t *elementsTest) Run(ctx context.Context, page browser.Page, args map[string]any) (any, error) {
	selector, _ := args["selector"].(string)
	level, _ := args["detailLevel"].(float64)

	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	var found []elementInfo
	if err := page.Evaluate(ctx, fmt.Sprintf(listElementsJS, quoted), &found); err != nil {
		return nil, fmt.Errorf("failed to list elements: %w", err)
	}

	out := map[string]any{"count": float64(len(found))}
	if level >= 1 {
		out["tags"] = tally(found)
	}
	if level >= 2 {
		texts := make([]any, len(found))
		for i, f := range found {
			texts[i] = f.Text
		}
		out["texts"] = texts
	}
	return out, nil
}

// -- focusables --

// markFocusablesJS stamps each focusable element with its tab position.
const markFocusablesJS = `(() => {
  const sel = 'a[href], area[href], button, input:not([type="hidden"]), select, textarea, iframe, [tabindex], [contenteditable="true"]';
  const out = [];
  document.querySelectorAll(sel).forEach(el => {
    if (el.disabled || el.tabIndex < 0) return;
    el.setAttribute('data-pagecheck-focusable', String(out.length));
    out.push({tag: el.tagName.toLowerCase(), text: (el.innerText || el.value || "").trim().slice(0, 200)});
  });
  return out;
})()`

type focusablesTest struct{ BaseTest }

// NewFocusablesTest tallies keyboard-focusable elements. It marks them in the DOM.
func NewFocusablesTest() Test {
	return &focusablesTest{NewBaseTest("focusables", "Tally keyboard-focusable elements", nil, true)}
}

func (t *focusablesTest) Run(ctx context.Context, page browser.Page, _ map[string]any) (any, error) {
	var found []elementInfo
	if err := page.Evaluate(ctx, markFocusablesJS, &found); err != nil {
		return nil, fmt.Errorf("failed to mark focusables: %w", err)
	}
	return map[string]any{"count": float64(len(found)), "tags": tally(found)}, nil
}

func tally(found []elementInfo) map[string]any {
	counts := map[string]int{}
	for _, f := range found {
		counts[f.Tag]++
	}
	out := make(map[string]any, len(counts))
	for tag, n := range counts {
		out[tag] = float64(n)
	}
	return out
}

// -- summary --

type summaryScorer struct{}

// NewSummaryScorer tallies act outcomes. score is the percentage of executed acts that
// neither errored nor failed an expectation.
func NewSummaryScorer() Scorer { return summaryScorer{} }

func (summaryScorer) Name() string { return "summary" }

func (summaryScorer) Score(acts []*schemas.Act) (any, error) {
	var executed, errored, failedTests, failures int
	types := map[string]int{}
	for _, a := range acts {
		if !a.Executed() {
			continue
		}
		executed++
		types[string(a.Type)]++
		if a.Error != "" {
			errored++
			continue
		}
		if n := expectationFailures(a); n > 0 {
			failedTests++
			failures += n
		}
	}

	score := 100.0
	if executed > 0 {
		score = 100 * float64(executed-errored-failedTests) / float64(executed)
	}
	byType := make(map[string]any, len(types))
	for k, n := range types {
		byType[k] = float64(n)
	}
	return map[string]any{
		"acts":                 float64(len(acts)),
		"executed":             float64(executed),
		"errors":               float64(errored),
		ExpectationFailuresKey: float64(failures),
		"types":                byType,
		"score":                score,
	}, nil
}

func expectationFailures(a *schemas.Act) int {
	if a.Type != schemas.ActTest {
		return 0
	}
	m, ok := a.Result.(map[string]any)
	if !ok {
		return 0
	}
	switch n := m[ExpectationFailuresKey].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
