// internal/executor/presses.go
package executor

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/command"
	"github.com/xkilldash9x/pagecheck/internal/resolver"
)

//go:embed js_scripts/focused.js
var focusedScript string

// Traversal outcomes of a presses act that never reached its target.
const (
	// locallyExhausted means focus came back to an element already visited by this act.
	locallyExhausted = "locallyExhausted"
	// globallyExhausted means nothing on the page ever took focus.
	globallyExhausted = "globallyExhausted"
	// pressLimit means max_presses was reached first.
	pressLimit = "pressLimit"
)

// focusInfo describes document.activeElement after a press.
type focusInfo struct {
	None bool   `json:"none"`
	Seen bool   `json:"seen"`
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

func (c focusInfo) matches(p command.Presses) bool {
	if p.Tag != "" && !strings.EqualFold(c.Tag, p.Tag) {
		return false
	}
	return p.Text == "" || strings.Contains(resolver.Debloat(c.Text), resolver.Debloat(p.Text))
}

// presses moves focus with the navigation key until the focused element matches, then
// optionally types and presses the action key. Each visited element is stamped with a
// marker unique to this act so a revisit is recognized.
func (e *Executor) presses(ctx context.Context, act *schemas.Act, c command.Presses) {
	page, ok := e.page(act)
	if !ok {
		return
	}
	marker, err := json.Marshal(uuid.NewString())
	if err != nil {
		act.Error = err.Error()
		return
	}
	probe := fmt.Sprintf("(%s)(%s)", strings.TrimSpace(focusedScript), marker)

	var (
		presses, charsRead, dialogs, visited int
		reached                              *focusInfo
		status                               = pressLimit
	)
	record := func() {
		rec := map[string]any{
			"presses":          presses,
			"charsRead":        charsRead,
			"dialogsDismissed": dialogs,
		}
		if reached != nil {
			rec["status"] = "reached"
			rec["tag"] = reached.Tag
			rec["text"] = reached.Text
		} else {
			rec["status"] = status
		}
		act.Result = rec
	}

	pressAndProbe := func() (focusInfo, error) {
		actionCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
		defer cancel()
		if err := page.Press(actionCtx, c.NavKey); err != nil {
			return focusInfo{}, err
		}
		presses++
		var info focusInfo
		err := page.Evaluate(actionCtx, probe, &info)
		return info, err
	}

traverse:
	for presses < e.cfg.MaxPresses {
		dialogs += page.DismissedDialogs()
		info, err := pressAndProbe()
		if err != nil {
			act.Error = fmt.Sprintf("presses failed after %d presses: %v", presses, err)
			record()
			return
		}
		switch {
		case info.None:
			// Focus can rest in browser chrome for one press while wrapping around.
			if visited == 0 && presses > 1 {
				status = globallyExhausted
				break traverse
			}
		case info.Seen:
			status = locallyExhausted
			break traverse
		default:
			visited++
			charsRead += len([]rune(info.Text))
			if info.matches(c) {
				reached = &info
				break traverse
			}
		}
	}
	dialogs += page.DismissedDialogs()

	if reached == nil {
		act.Error = map[string]string{
			locallyExhausted:  "every focusable element was visited without reaching the target",
			globallyExhausted: "no element on the page is focusable",
			pressLimit:        fmt.Sprintf("target not reached within %d presses", e.cfg.MaxPresses),
		}[status]
		record()
		return
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()
	if c.TypeText != "" {
		if err := page.InsertText(actionCtx, c.TypeText); err != nil {
			act.Error = fmt.Sprintf("typing into the reached element failed: %v", err)
		}
	}
	if c.Action != "" && act.Error == "" {
		if err := page.Press(actionCtx, c.Action); err != nil {
			act.Error = fmt.Sprintf("action key %s failed: %v", c.Action, err)
		} else {
			presses++
		}
	}
	record()
}
