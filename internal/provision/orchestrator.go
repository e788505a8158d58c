package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"mac-bootstrap/internal/logger"
)

// Resource is a system setting changed for the duration of a run.
// Acquire returns a release function that restores the previous state.
type Resource interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPrivilegeCheck replaces os.Geteuid, mainly for tests.
func WithPrivilegeCheck(euid func() int) Option {
	return func(o *Orchestrator) { o.euid = euid }
}

// WithLookPath sets how Requires are resolved. It should match the runner's search path.
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(o *Orchestrator) { o.lookPath = lookPath }
}

// WithResource holds r for the whole run.
func WithResource(r Resource) Option {
	return func(o *Orchestrator) { o.resource = r }
}

// WithObserver is called with every result as soon as it is known.
func WithObserver(fn func(Result)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// Orchestrator runs the steps of a registry in order.
type Orchestrator struct {
	registry *Registry
	euid     func() int
	lookPath func(string) (string, error)
	resource Resource
	observer func(Result)
}

// NewOrchestrator creates an orchestrator for reg.
func NewOrchestrator(reg *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		euid:     os.Geteuid,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes every step once, in registry order.
//
// It refuses to start as root. If a resource is configured it is acquired
// before the first step and released on every return path, including a halt
// or a cancelled context. The returned error is non-nil when the run stopped
// early; failures of steps declared Continue only show up in the report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{runID: uuid.NewString(), startedAt: time.Now()}

	if o.euid() == 0 {
		report.halted = true
		report.err = fmt.Errorf("%w: running as root is not supported; run as your own user, sudo is requested only where needed", ErrPrerequisiteViolation)
		report.finishedAt = time.Now()
		logger.Error("%v", report.err)
		return report, report.err
	}

	if o.resource != nil {
		release, err := o.resource.Acquire(ctx)
		if err != nil {
			logger.Warn("Could not prevent sleep, continuing without it: %v", err)
		} else {
			defer func() {
				// The run context may already be cancelled; restoring must still happen.
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.Error("Failed to restore power settings: %v", err)
				}
			}()
		}
	}

	failed := make(map[string]bool)
	steps := o.registry.Steps()
	logger.Debug("Running %d steps (run %s)", len(steps), report.runID)

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			report.halted = true
			report.err = fmt.Errorf("%w: interrupted before %s: %w", ErrHalted, step.Name, err)
			logger.Error("%v", report.err)
			break
		}

		logger.Info("==> [%d/%d] %s", i+1, len(steps), step.Name)
		res := o.runStep(ctx, step, failed)
		report.results = append(report.results, res)
		logResult(step, res)
		if o.observer != nil {
			o.observer(res)
		}

		if res.Status != StatusFailed {
			continue
		}
		failed[step.Name] = true
		if step.Group != "" {
			failed[step.Group] = true
		}
		if step.OnFailure == Halt {
			report.halted = true
			report.err = fmt.Errorf("%w: %s failed: %w", ErrHalted, step.Name, res.Err)
			break
		}
	}

	report.finishedAt = time.Now()
	return report, report.err
}

func (o *Orchestrator) runStep(ctx context.Context, step Step, failed map[string]bool) Result {
	start := time.Now()
	result := func(status Status, msg string, err error) Result {
		return Result{Step: step.Name, Status: status, Message: msg, Err: err, Duration: time.Since(start)}
	}

	for _, dep := range step.After {
		if failed[dep] {
			err := fmt.Errorf("%w: %s failed earlier in this run", ErrDependencyMissing, dep)
			return result(StatusFailed, err.Error(), err)
		}
	}
	for _, tool := range step.Requires {
		if _, err := o.lookPath(tool); err != nil {
			err = fmt.Errorf("%w: %s is not installed", ErrDependencyMissing, tool)
			return result(StatusFailed, err.Error(), err)
		}
	}

	installed, err := step.Check(ctx)
	if err != nil {
		err = fmt.Errorf("check %s: %w", step.Name, err)
		return result(StatusFailed, err.Error(), err)
	}
	if installed {
		return result(StatusSkipped, "already in place", nil)
	}

	if err := step.Apply(ctx); err != nil {
		if !errors.Is(err, ErrDependencyMissing) && !errors.Is(err, ErrCommandFailure) {
			err = fmt.Errorf("%w: %w", ErrCommandFailure, err)
		}
		return result(StatusFailed, err.Error(), err)
	}
	return result(StatusApplied, "done", nil)
}

func logResult(step Step, res Result) {
	switch res.Status {
	case StatusSkipped:
		logger.Info("%s: %s, skipping", step.Name, res.Message)
	case StatusApplied:
		logger.Info("%s: applied in %s", step.Name, res.Duration.Round(time.Millisecond))
	case StatusFailed:
		logger.Error("%s: %v", step.Name, res.Err)
		if step.OnFailure == Continue {
			logger.Warn("%s failed, continuing with the next step", step.Name)
		}
	}
}
