// Package provision holds the idempotent provisioning model: steps, the
// ordered registry they live in, and the orchestrator that runs them.
package provision

import (
	"context"
	"fmt"
)

// Policy declares what a failing step does to the rest of the run.
type Policy int

const (
	// Continue logs the failure and moves on to the next step.
	Continue Policy = iota
	// Halt stops the run after the failing step.
	Halt
)

func (p Policy) String() string {
	if p == Halt {
		return "halt"
	}
	return "continue"
}

// ParsePolicy accepts "halt" or "continue". Empty yields def.
func ParsePolicy(s string, def Policy) (Policy, error) {
	switch s {
	case "":
		return def, nil
	case "halt":
		return Halt, nil
	case "continue":
		return Continue, nil
	}
	return def, fmt.Errorf("unknown failure policy %q (want halt or continue)", s)
}

// Step is one idempotent provisioning action.
type Step struct {
	// Name is unique within a registry, e.g. "cli-tools:git".
	Name string
	// Group is the configuration entry the step was expanded from, e.g. "cli-tools".
	// Other steps may depend on a whole group through After.
	Group string
	// Check reports whether the step's effect is already in place.
	Check func(ctx context.Context) (bool, error)
	// Apply produces the effect. It must be safe to run again.
	Apply func(ctx context.Context) error
	// SideEffects lists the preference keys or paths the step touches.
	SideEffects []string
	// Requires lists commands that must resolve before Check and Apply run.
	Requires []string
	// After lists earlier step names or groups this step depends on.
	After []string
	// OnFailure is the declared failure policy.
	OnFailure Policy
}
