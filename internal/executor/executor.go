// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/browser"
	"github.com/xkilldash9x/pagecheck/internal/command"
	"github.com/xkilldash9x/pagecheck/internal/config"
	"github.com/xkilldash9x/pagecheck/internal/observability"
	"github.com/xkilldash9x/pagecheck/internal/resolver"
	"github.com/xkilldash9x/pagecheck/internal/session"
)

// ErrFatal marks a run stopped before its last act.
var ErrFatal = errors.New("fatal act failure")

// Session is the browser session the executor drives. *session.Manager implements it.
type Session interface {
	Launch(ctx context.Context, engine string) error
	Visit(ctx context.Context, target string, strict bool) session.Visit
	WaitForNewPage(ctx context.Context) error
	Page() (browser.Page, error)
}

// Resolver locates move targets. *resolver.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, page resolver.Page, selector, matchText string, index int, hasIndex bool) (resolver.Resolution, error)
}

// Plugins runs named tests and scorers. *plugins.Registry implements it.
type Plugins interface {
	RunTest(ctx context.Context, name string, page browser.Page, args map[string]any) (any, error)
	RunScorer(name string, acts []*schemas.Act) (any, error)
}

// Executor interprets the acts of a report. One Executor may run many reports, one at a time.
type Executor struct {
	session   Session
	resolver  Resolver
	plugins   Plugins
	validator *command.Validator
	cfg       config.ExecutorConfig
	logger    *zap.Logger
}

// New creates an executor.
func New(sess Session, res Resolver, plug Plugins, validator *command.Validator, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		session:   sess,
		resolver:  res,
		plugins:   plug,
		validator: validator,
		cfg:       cfg,
		logger:    logger.Named("executor"),
	}
}

// run is the state of one report's execution.
type run struct {
	acts   []*schemas.Act
	strict bool
	// names maps act labels to positions.
	names map[string]int
	// lastDone is the position of the most recently completed non-next act, or -1.
	lastDone int
}

// halted is the cursor value of an explicit stop.
const halted = -1

// Run executes report.Acts in place, starting at the first act, until the cursor passes
// the last act or a next act stops the script. Every act failure is written on the act;
// the returned error wraps ErrFatal when the run could not continue, or is the context's
// error when ctx ended first.
func (e *Executor) Run(ctx context.Context, report *schemas.Report) error {
	r := &run{acts: report.Acts, strict: report.Strict, names: map[string]int{}, lastDone: -1}
	for i, a := range r.acts {
		if name := a.Name(); name != "" {
			if _, dup := r.names[name]; !dup {
				r.names[name] = i
			}
		}
	}

	cursor := 0
	for cursor >= 0 && cursor < len(r.acts) {
		if err := ctx.Err(); err != nil {
			return err
		}
		act := r.acts[cursor]
		logger := e.logger.With(zap.Int("act", cursor), zap.String("type", string(act.Type)))
		logger.Debug("Executing act.")

		next, rejected, err := e.step(ctx, r, cursor)
		if err != nil {
			act.Error = err.Error()
			observability.RecordAct(string(act.Type), "fatal")
			logger.Error("Run stopped on a fatal act.", zap.Error(err))
			return fmt.Errorf("%w: act %d: %v", ErrFatal, cursor, err)
		}

		outcome := "ok"
		if act.Error != "" {
			outcome = "error"
			logger.Debug("Act failed.", zap.String("error", act.Error))
		}
		observability.RecordAct(string(act.Type), outcome)

		if act.Type != schemas.ActNext {
			r.lastDone = cursor
		}
		if !rejected {
			e.stampURL(ctx, act)
		}
		cursor = next
	}
	if cursor == halted {
		e.logger.Debug("Script stopped by a next act.")
	}
	return nil
}

// step executes the act at cursor and returns the next cursor. rejected reports an act
// that failed validation and never touched the page. Only fatal conditions are returned
// as errors.
func (e *Executor) step(ctx context.Context, r *run, cursor int) (next int, rejected bool, err error) {
	act := r.acts[cursor]
	if engine, ok := act.String("which"); ok && act.Type == schemas.ActLaunch && !e.validator.HasEngine(engine) {
		return cursor + 1, true, fmt.Errorf("%w: %q", browser.ErrUnknownEngine, engine)
	}
	if problems := e.validator.CheckAct(act); len(problems) > 0 {
		act.Error = strings.Join(problems, "; ")
		return cursor + 1, true, nil
	}
	cmd, err := command.Parse(act)
	if err != nil {
		act.Error = err.Error()
		return cursor + 1, true, nil
	}

	switch c := cmd.(type) {
	case command.Launch:
		return cursor + 1, false, e.launch(ctx, act, c)
	case command.Visit:
		e.visit(ctx, r, act, c)
	case command.Wait:
		e.wait(ctx, act, c)
	case command.State:
		e.state(ctx, act, c)
	case command.NewPage:
		e.newPage(ctx, act)
	case command.Reveal:
		e.reveal(ctx, act)
	case command.Move:
		e.move(ctx, act, c)
	case command.Press:
		e.press(ctx, act, c)
	case command.Presses:
		e.presses(ctx, act, c)
	case command.Test:
		e.test(ctx, act, c)
	case command.Score:
		e.score(r, cursor, act, c)
	case command.Next:
		return e.next(r, cursor, act, c), false, nil
	default:
		act.Error = fmt.Sprintf("invalid command type %q", act.Type)
		return cursor + 1, true, nil
	}
	return cursor + 1, false, nil
}

// stampURL records the page URL current after the act, when there is a page.
func (e *Executor) stampURL(ctx context.Context, act *schemas.Act) {
	page, err := e.session.Page()
	if err != nil {
		return
	}
	urlCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()
	if u, err := page.URL(urlCtx); err == nil {
		act.URL = u
	}
}

// page returns the current page or records the absence of a session on act.
func (e *Executor) page(act *schemas.Act) (browser.Page, bool) {
	page, err := e.session.Page()
	if err != nil {
		act.Error = err.Error()
		return nil, false
	}
	return page, true
}
