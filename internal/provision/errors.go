package provision

import "errors"

var (
	// ErrPrerequisiteViolation is fatal: nothing runs.
	ErrPrerequisiteViolation = errors.New("prerequisite violation")
	// ErrDependencyMissing marks a step whose required tool or earlier step is unavailable.
	ErrDependencyMissing = errors.New("dependency missing")
	// ErrCommandFailure wraps a failing Apply.
	ErrCommandFailure = errors.New("command failure")
	// ErrHalted is returned by Run when a halting step failed or the run was interrupted.
	ErrHalted = errors.New("run halted")
)
