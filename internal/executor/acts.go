// internal/executor/acts.go
package executor

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/browser"
	"github.com/xkilldash9x/pagecheck/internal/command"
	"github.com/xkilldash9x/pagecheck/internal/plugins"
	"github.com/xkilldash9x/pagecheck/internal/resolver"
)

//go:embed js_scripts/reveal.js
var revealScript string

func (e *Executor) launch(ctx context.Context, act *schemas.Act, c command.Launch) error {
	if err := e.session.Launch(ctx, c.Engine); err != nil {
		if errors.Is(err, browser.ErrUnknownEngine) {
			return err
		}
		act.Error = err.Error()
		return nil
	}
	act.Result = c.Engine
	return nil
}

func (e *Executor) visit(ctx context.Context, r *run, act *schemas.Act, c command.Visit) {
	v := e.session.Visit(ctx, c.URL, r.strict)
	if v.Err != nil {
		act.Error = v.Err.Error()
		return
	}
	act.Result = v.URL
	if v.Warning != "" {
		act.Error = "badRedirect: " + v.Warning
	}
}

func (e *Executor) wait(ctx context.Context, act *schemas.Act, c command.Wait) {
	page, ok := e.page(act)
	if !ok {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.WaitTimeout)
	defer cancel()

	read := map[command.WaitTarget]func(context.Context) (string, error){
		command.WaitURL:   page.URL,
		command.WaitTitle: page.Title,
		command.WaitBody:  page.BodyText,
	}[c.Target]

	limiter := rate.NewLimiter(rate.Every(e.cfg.PollInterval), 1)
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			act.Error = fmt.Sprintf("%s did not contain %q within %v", c.Target, c.Text, e.cfg.WaitTimeout)
			return
		}
		observed, err := read(waitCtx)
		if err == nil && strings.Contains(observed, c.Text) {
			break
		}
	}

	settleCtx, settleCancel := context.WithTimeout(ctx, e.cfg.SettleTimeout)
	defer settleCancel()
	if err := page.WaitForState(settleCtx, browser.WaitNetworkIdle); err != nil {
		e.logger.Debug("Page did not settle after wait.", zap.Error(err))
	}
	act.Result = map[string]any{"what": string(c.Target), "found": c.Text}
}

func (e *Executor) state(ctx context.Context, act *schemas.Act, c command.State) {
	page, ok := e.page(act)
	if !ok {
		return
	}
	cond := browser.WaitDOMContentLoaded
	if c.Which == command.StateIdle {
		cond = browser.WaitNetworkIdle
	}
	stateCtx, cancel := context.WithTimeout(ctx, e.cfg.StateTimeout)
	defer cancel()
	if err := page.WaitForState(stateCtx, cond); err != nil {
		act.Error = fmt.Sprintf("page did not reach %s: %v", c.Which, err)
		return
	}
	act.Result = string(c.Which)
}

func (e *Executor) newPage(ctx context.Context, act *schemas.Act) {
	pageCtx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
	defer cancel()
	if err := e.session.WaitForNewPage(pageCtx); err != nil {
		act.Error = err.Error()
		return
	}
	page, ok := e.page(act)
	if !ok {
		return
	}
	u, err := page.URL(pageCtx)
	if err != nil {
		act.Error = fmt.Sprintf("new page has no readable URL: %v", err)
		return
	}
	act.Result = u
}

func (e *Executor) reveal(ctx context.Context, act *schemas.Act) {
	page, ok := e.page(act)
	if !ok {
		return
	}
	actionCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()
	var changed int
	if err := page.Evaluate(actionCtx, revealScript, &changed); err != nil {
		act.Error = fmt.Sprintf("reveal failed: %v", err)
		return
	}
	act.Result = map[string]any{"revealed": changed}
}

func (e *Executor) move(ctx context.Context, act *schemas.Act, c command.Move) {
	page, ok := e.page(act)
	if !ok {
		return
	}
	res, err := e.resolver.Resolve(ctx, page, c.Selector, c.Which, c.Index, c.HasIndex)
	if err != nil {
		act.Error = err.Error()
		return
	}
	rec := res.Record()
	act.Result = rec
	if res.Kind != resolver.Found {
		act.Error = res.Describe()
		return
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()
	switch c.Kind {
	case schemas.ActButton, schemas.ActLink:
		err = page.Click(actionCtx, res.Element)
	case schemas.ActCheckbox, schemas.ActRadio:
		err = page.Check(actionCtx, res.Element)
	case schemas.ActFocus:
		err = page.Focus(actionCtx, res.Element)
	case schemas.ActText:
		err = page.Type(actionCtx, res.Element, c.Value)
	case schemas.ActSelect:
		var chosen string
		chosen, err = page.SelectOption(actionCtx, res.Element, c.Option)
		rec["option"] = chosen
	}
	if err != nil {
		act.Error = fmt.Sprintf("%s failed: %v", c.Kind, err)
	}
}

func (e *Executor) press(ctx context.Context, act *schemas.Act, c command.Press) {
	page, ok := e.page(act)
	if !ok {
		return
	}
	presses := 0
	for i := 0; i <= c.Again; i++ {
		actionCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
		err := page.Press(actionCtx, c.Key)
		cancel()
		if err != nil {
			act.Error = fmt.Sprintf("press %s failed: %v", c.Key, err)
			break
		}
		presses++
	}
	act.Result = map[string]any{"presses": presses}
}

func (e *Executor) test(ctx context.Context, act *schemas.Act, c command.Test) {
	page, ok := e.page(act)
	if !ok {
		return
	}
	raw, err := e.plugins.RunTest(ctx, c.Which, page, c.Args)
	if err != nil {
		act.Error = err.Error()
		return
	}
	result, err := schemas.Generic(raw)
	if err != nil {
		act.Error = fmt.Sprintf("test %s returned an unserializable result: %v", c.Which, err)
		return
	}
	if len(c.Expect) == 0 {
		act.Result = result
		return
	}

	records := make([]any, len(c.Expect))
	failures := 0
	for i, exp := range c.Expect {
		o := exp.Evaluate(result)
		if !o.Holds {
			failures++
		}
		records[i] = exp.Record(o)
	}
	merged, isMap := result.(map[string]any)
	if !isMap {
		merged = map[string]any{"value": result}
	}
	merged[plugins.ExpectationsKey] = records
	merged[plugins.ExpectationFailuresKey] = failures
	act.Result = merged
}

func (e *Executor) score(r *run, cursor int, act *schemas.Act, c command.Score) {
	raw, err := e.plugins.RunScorer(c.Which, r.acts[:cursor])
	if err != nil {
		act.Error = err.Error()
		return
	}
	result, err := schemas.Generic(raw)
	if err != nil {
		act.Error = fmt.Sprintf("scorer %s returned an unserializable result: %v", c.Which, err)
		return
	}
	act.Result = result
}

// next evaluates the condition and returns the following cursor. A path whose first step
// names an earlier act is read from that act's result; otherwise it is read from the most
// recently completed non-next act.
func (e *Executor) next(r *run, cursor int, act *schemas.Act, c command.Next) int {
	cond := c.If
	var source any
	if idx, ok := r.names[cond.Path[0]]; ok && idx < cursor && len(cond.Path) > 1 {
		source = r.acts[idx].Result
		cond.Path = cond.Path[1:]
	} else if r.lastDone >= 0 {
		source = r.acts[r.lastDone].Result
	}

	o := cond.Evaluate(source)
	rec := cond.Record(o)
	rec["property"] = c.If.Path.String()
	rec["jumped"] = o.Holds
	act.Result = rec

	if !o.Holds {
		return cursor + 1
	}
	switch {
	case c.Stop:
		return halted
	case c.Jump > 0:
		return cursor + c.Jump
	case c.Target != "":
		idx, ok := r.names[c.Target]
		if !ok {
			act.Error = fmt.Sprintf("no act is named %q", c.Target)
			rec["jumped"] = false
			return cursor + 1
		}
		return idx
	}
	return cursor + 1
}
