package installer

import (
	"context"

	"mac-bootstrap/internal/config"
	"mac-bootstrap/internal/provision"
	"mac-bootstrap/internal/runner"
)

// command runs entry.Check; exit status 0 means the effect is in place.
// Otherwise entry.Run is executed.
func (b *builder) command(entry config.Step) provision.Step {
	requires := []string{entry.Check[0]}
	if entry.Run[0] != entry.Check[0] {
		requires = append(requires, entry.Run[0])
	}

	return provision.Step{
		Name:     entry.Name,
		Requires: requires,
		Check: func(ctx context.Context) (bool, error) {
			out, err := b.deps.Runner.Run(ctx, entry.Check[0], entry.Check[1:], runner.Options{})
			if err != nil {
				return false, err
			}
			return out.Success(), nil
		},
		Apply: func(ctx context.Context) error {
			out, err := b.deps.Runner.Run(ctx, entry.Run[0], entry.Run[1:], runner.Options{
				Sudo:        entry.Sudo,
				Interactive: entry.Interactive,
			})
			if err != nil {
				return err
			}
			return out.Err()
		},
	}
}
