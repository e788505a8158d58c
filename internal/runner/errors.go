package runner

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels for errors.Is. The concrete types below carry the details.
var (
	ErrCommandNotFound = errors.New("command not found")
	ErrNonZeroExit     = errors.New("non-zero exit")
	ErrTimeout         = errors.New("command timed out")
)

// NotFoundError reports that a command could not be resolved on the search path.
type NotFoundError struct {
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, ErrCommandNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrCommandNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }

// NonZeroExitError is produced by Outcome.Err; Run itself never returns it.
type NonZeroExitError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *NonZeroExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", commandLine(e.Name, e.Args), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

func (e *NonZeroExitError) Is(target error) bool { return target == ErrNonZeroExit }

// TimeoutError reports that a command was killed after exceeding Options.Timeout.
type TimeoutError struct {
	Name  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Name, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// lastLine keeps error messages to a single line; installers tend to dump pages of stderr.
func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
