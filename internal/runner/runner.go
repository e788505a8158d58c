// Package runner executes external commands for provisioning steps.
//
// A non-zero exit status is part of the Outcome, not an error: callers decide
// what a failing `brew list` or `defaults read` means. Errors are reserved for
// commands that could not be resolved, could not be started, or timed out.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mac-bootstrap/internal/logger"
)

// Outcome is the captured result of a finished command.
type Outcome struct {
	Name     string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the command exited with status 0.
func (o Outcome) Success() bool {
	return o.ExitCode == 0
}

// Err converts a non-zero exit into a *NonZeroExitError, or returns nil.
func (o Outcome) Err() error {
	if o.Success() {
		return nil
	}
	return &NonZeroExitError{Name: o.Name, Args: o.Args, ExitCode: o.ExitCode, Stderr: o.Stderr}
}

// Options tune a single invocation.
type Options struct {
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env entries ("KEY=value") are added on top of the inherited environment.
	Env []string
	// Timeout kills the command after the given duration. Zero means no limit.
	Timeout time.Duration
	// Sudo runs the command through sudo. It is never implied.
	Sudo bool
	// Interactive attaches the terminal so installers can prompt; output is still captured.
	Interactive bool
	// Stdin, when set, is fed to the command instead of the terminal.
	Stdin io.Reader
}

// Runner is what steps depend on. Exec is the real implementation.
type Runner interface {
	Run(ctx context.Context, name string, args []string, opts Options) (Outcome, error)
	LookPath(name string) (string, error)
}

// Exec runs commands with os/exec.
type Exec struct {
	searchPath []string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

// New creates an Exec that resolves commands in searchPath before falling
// back to $PATH. The same directories are prepended to PATH for children,
// so a tool installed earlier in the run is visible to later steps.
func New(searchPath ...string) *Exec {
	return &Exec{
		searchPath: searchPath,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
}

// LookPath resolves name against the configured search path, then $PATH.
func (e *Exec) LookPath(name string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		if isExecutable(name) {
			return name, nil
		}
		return "", &NotFoundError{Name: name, Err: fs.ErrNotExist}
	}
	for _, dir := range e.searchPath {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &NotFoundError{Name: name, Err: err}
	}
	return path, nil
}

// Run executes name with args and waits for it to finish.
func (e *Exec) Run(ctx context.Context, name string, args []string, opts Options) (Outcome, error) {
	outcome := Outcome{Name: name, Args: args, ExitCode: -1}

	path, err := e.LookPath(name)
	if err != nil {
		return outcome, err
	}

	bin, argv := path, args
	if opts.Sudo {
		sudo, err := e.LookPath("sudo")
		if err != nil {
			return outcome, err
		}
		bin = sudo
		argv = append([]string{"--", path}, args...)
	}

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, bin, argv...)
	cmd.Dir = opts.Dir
	cmd.Env = e.environ(opts.Env)

	var stdout, stderr bytes.Buffer
	if opts.Interactive {
		cmd.Stdin = e.stdin
		cmd.Stdout = io.MultiWriter(&stdout, e.stdout)
		cmd.Stderr = io.MultiWriter(&stderr, e.stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	logger.Debug("Running command: %s", commandLine(bin, argv))

	start := time.Now()
	err = cmd.Run()
	outcome.Duration = time.Since(start)
	outcome.Stdout = stdout.String()
	outcome.Stderr = stderr.String()

	if err == nil {
		outcome.ExitCode = 0
		return outcome, nil
	}

	// The deadline check must come before ExitError: a killed process also exits non-zero.
	if opts.Timeout > 0 && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return outcome, &TimeoutError{Name: name, After: opts.Timeout}
	}
	if ctx.Err() != nil {
		return outcome, fmt.Errorf("%s: %w", name, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
		logger.Debug("%s exited with status %d", name, outcome.ExitCode)
		return outcome, nil
	}
	return outcome, fmt.Errorf("start %s: %w", name, err)
}

// environ returns the inherited environment with the search path prepended to
// PATH and extra entries appended. os/exec keeps the last value of a duplicated key.
func (e *Exec) environ(extra []string) []string {
	env := os.Environ()
	if len(e.searchPath) > 0 {
		path := strings.Join(e.searchPath, string(os.PathListSeparator))
		if current := os.Getenv("PATH"); current != "" {
			path += string(os.PathListSeparator) + current
		}
		env = append(env, "PATH="+path)
	}
	return append(env, extra...)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// Ensure Exec implements Runner.
var _ Runner = (*Exec)(nil)
