package provision

import (
	"errors"
	"fmt"
)

// Registry is an ordered list of steps. Order is execution order; a step may
// only depend on steps (or groups) added before it, so no cycles can form.
type Registry struct {
	steps  []Step
	byName map[string]int
	groups map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]int),
		groups: make(map[string]bool),
	}
}

// Add appends steps in order.
func (r *Registry) Add(steps ...Step) error {
	for _, s := range steps {
		if s.Name == "" {
			return errors.New("step without a name")
		}
		if _, dup := r.byName[s.Name]; dup {
			return fmt.Errorf("duplicate step %q", s.Name)
		}
		if s.Check == nil || s.Apply == nil {
			return fmt.Errorf("step %q: check and apply are required", s.Name)
		}
		for _, dep := range s.After {
			if !r.Has(dep) {
				return fmt.Errorf("step %q: depends on %q, which is not registered before it", s.Name, dep)
			}
		}
		r.byName[s.Name] = len(r.steps)
		if s.Group != "" {
			r.groups[s.Group] = true
		}
		r.steps = append(r.steps, s)
	}
	return nil
}

// Has reports whether name is a registered step or group.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok || r.groups[name]
}

// Get returns the step called name.
func (r *Registry) Get(name string) (Step, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Step{}, false
	}
	return r.steps[i], true
}

// Steps returns the steps in order. The slice is a copy.
func (r *Registry) Steps() []Step {
	return append([]Step(nil), r.steps...)
}

// Len returns the number of steps.
func (r *Registry) Len() int {
	return len(r.steps)
}
