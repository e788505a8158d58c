// Package testutil provides test doubles shared by the provisioning packages.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"mac-bootstrap/internal/runner"
)

// Call records one invocation seen by a Runner.
type Call struct {
	Name string
	Args []string
	Opts runner.Options
}

// Line returns the call as a single command line, e.g. "brew list --formula git".
func (c Call) Line() string {
	return key(c.Name, c.Args)
}

// Handler computes the outcome of a scripted command.
type Handler func(opts runner.Options) (runner.Outcome, error)

// Runner is a scripted runner.Runner. Commands are matched by their full
// command line; unscripted commands fail so tests notice unexpected calls.
type Runner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	paths    map[string]string
	calls    []Call
}

// NewRunner creates an empty scripted runner.
func NewRunner() *Runner {
	return &Runner{
		handlers: make(map[string]Handler),
		paths:    make(map[string]string),
	}
}

// On scripts a fixed outcome for a command line.
func (r *Runner) On(line string, out runner.Outcome) *Runner {
	return r.OnFunc(line, func(runner.Options) (runner.Outcome, error) { return out, nil })
}

// OnExit scripts an exit status with optional stdout.
func (r *Runner) OnExit(line string, code int, stdout string) *Runner {
	return r.On(line, runner.Outcome{ExitCode: code, Stdout: stdout})
}

// OnError scripts an error, such as a *runner.NotFoundError.
func (r *Runner) OnError(line string, err error) *Runner {
	return r.OnFunc(line, func(runner.Options) (runner.Outcome, error) { return runner.Outcome{ExitCode: -1}, err })
}

// OnFunc scripts a handler, for commands whose result depends on earlier calls.
func (r *Runner) OnFunc(line string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[line] = h
	return r
}

// Provide makes LookPath resolve name.
func (r *Runner) Provide(names ...string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.paths[n] = "/usr/local/bin/" + n
	}
	return r
}

// Run implements runner.Runner.
func (r *Runner) Run(_ context.Context, name string, args []string, opts runner.Options) (runner.Outcome, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...), Opts: opts})
	h, ok := r.handlers[key(name, args)]
	r.mu.Unlock()

	if !ok {
		return runner.Outcome{Name: name, Args: args, ExitCode: -1}, fmt.Errorf("no scripted result for %q", key(name, args))
	}
	out, err := h(opts)
	out.Name, out.Args = name, args
	return out, err
}

// LookPath implements runner.Runner.
func (r *Runner) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.paths[name]; ok {
		return p, nil
	}
	return "", &runner.NotFoundError{Name: name}
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns the recorded invocations as command lines.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.Line()
	}
	return lines
}

func key(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

var _ runner.Runner = (*Runner)(nil)
