// internal/driver/driver.go
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/command"
	"github.com/xkilldash9x/pagecheck/internal/executor"
	"github.com/xkilldash9x/pagecheck/internal/observability"
)

// Session is the per-report browser session. *session.Manager implements it.
type Session interface {
	executor.Session
	Stats() schemas.SessionStats
	Close(ctx context.Context) error
}

// Runner executes a prepared report in place. *executor.Executor implements it.
type Runner interface {
	Run(ctx context.Context, report *schemas.Report) error
}

// Builder creates a fresh session and the runner bound to it. It is called once per report
// so statistics never leak between hosts.
type Builder func() (Session, Runner)

// DOMCatalog tells which tests leave the page mutated. *plugins.Registry implements it.
type DOMCatalog interface {
	MutatesDOM(name string) bool
}

// Driver turns scripts and batches into reports.
type Driver struct {
	validator *command.Validator
	catalog   DOMCatalog
	build     Builder
	logger    *zap.Logger
}

// New creates a driver.
func New(validator *command.Validator, catalog DOMCatalog, build Builder, logger *zap.Logger) *Driver {
	return &Driver{validator: validator, catalog: catalog, build: build, logger: logger.Named("driver")}
}

// Prepare builds the report template of a script: a deep copy of its commands with a
// synthetic url act after every DOM-mutating test that is directly followed by another
// test. The synthetic act revisits the most recent url act's target.
func (d *Driver) Prepare(s *schemas.Script) *schemas.Report {
	report := &schemas.Report{
		ScriptID:          s.ID,
		ScriptDescription: s.Description,
		Strict:            s.Strict,
		Acts:              make([]*schemas.Act, 0, len(s.Commands)),
	}

	lastURL := ""
	for i, cmd := range s.Commands {
		a := cmd.Strip()
		report.Acts = append(report.Acts, a)
		if a.Type == schemas.ActURL {
			lastURL = a.StringOr("which", lastURL)
		}
		if !d.needsReset(s.Commands, i) || lastURL == "" {
			continue
		}
		reset := schemas.NewAct(schemas.ActURL, map[string]any{"which": lastURL, "what": "restore the page after a DOM-mutating test"})
		reset.Synthetic = true
		report.Acts = append(report.Acts, reset)
	}
	return report
}

func (d *Driver) needsReset(cmds []*schemas.Act, i int) bool {
	if cmds[i].Type != schemas.ActTest || i+1 >= len(cmds) || cmds[i+1].Type != schemas.ActTest {
		return false
	}
	which, _ := cmds[i].String("which")
	return d.catalog != nil && d.catalog.MutatesDOM(which)
}

// RunScript validates and executes a script once. A fatal act stops the run but still yields
// a report; the error is non-nil only for an invalid script or a cancelled context.
func (d *Driver) RunScript(ctx context.Context, s *schemas.Script) (*schemas.Report, error) {
	if problems := d.validator.CheckScript(s); len(problems) > 0 {
		return nil, command.Err(command.ErrInvalidScript, problems)
	}
	report := d.Prepare(s)
	if err := d.execute(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

// RunBatch replays the script once per host, strictly one host at a time. emit, when not
// nil, receives each report as soon as it is finished, including one cut short by
// cancellation; an emit error stops the batch.
func (d *Driver) RunBatch(ctx context.Context, s *schemas.Script, b *schemas.Batch, emit func(*schemas.Report) error) ([]*schemas.Report, error) {
	if problems := d.validator.CheckScript(s); len(problems) > 0 {
		return nil, command.Err(command.ErrInvalidScript, problems)
	}
	if problems := d.validator.CheckBatch(b); len(problems) > 0 {
		return nil, command.Err(command.ErrInvalidBatch, problems)
	}
	template := d.Prepare(s)
	batchID := b.ID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	reports := make([]*schemas.Report, 0, len(b.Hosts))
	for i, host := range b.Hosts {
		report := ForHost(template, host, i)
		report.BatchID = batchID
		d.logger.Info("Running script against host.", zap.Int("order", i), zap.String("target", host.Target))

		runErr := d.execute(ctx, report)
		reports = append(reports, report)
		// An interrupted report is still emitted before the batch stops.
		if emit != nil {
			if err := emit(report); err != nil {
				return reports, errors.Join(runErr, fmt.Errorf("failed to emit report for host %d: %w", i, err))
			}
		}
		if runErr != nil {
			return reports, runErr
		}
	}
	return reports, nil
}

// ForHost clones a report template for one host, pointing every url act at its target.
func ForHost(template *schemas.Report, host *schemas.Host, order int) *schemas.Report {
	report := template.Clone()
	h := *host
	report.Host = &h
	report.HostOrder = order
	for _, a := range report.Acts {
		if a.Type == schemas.ActURL {
			a.Params["which"] = host.Target
		}
	}
	return report
}

// execute runs one report on a fresh session and stamps timing and statistics on it.
func (d *Driver) execute(ctx context.Context, report *schemas.Report) error {
	report.ID = uuid.NewString()
	logger := d.logger.With(zap.String("report_id", report.ID))
	sess, runner := d.build()

	report.StartTime = time.Now().UTC()
	runErr := runner.Run(ctx, report)
	report.EndTime = time.Now().UTC()
	report.ElapsedSeconds = report.EndTime.Sub(report.StartTime).Seconds()
	report.SessionStats = sess.Stats()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		logger.Warn("Failed to close browser session.", zap.Error(err))
	}

	switch {
	case runErr == nil:
		observability.RecordReport("complete")
		logger.Info("Report complete.", zap.Float64("elapsed_seconds", report.ElapsedSeconds))
		return nil
	case errors.Is(runErr, executor.ErrFatal):
		report.Fatal = runErr.Error()
		observability.RecordReport("fatal")
		logger.Error("Report stopped on a fatal act.", zap.Error(runErr))
		return nil
	default:
		report.Fatal = runErr.Error()
		observability.RecordReport("cancelled")
		return runErr
	}
}
