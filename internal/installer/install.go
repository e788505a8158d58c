package installer

import (
	"context"
	"fmt"
	"os"

	"mac-bootstrap/internal/config"
	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/provision"
	"mac-bootstrap/internal/runner"
)

// script downloads an installer script and runs it with the configured
// interpreter. It counts as installed when `creates` exists or `command` resolves.
func (b *builder) script(entry config.Step) provision.Step {
	installed := func() bool {
		if entry.Creates != "" && exists(entry.Creates) {
			return true
		}
		if entry.Command != "" {
			if _, err := b.deps.Runner.LookPath(entry.Command); err == nil {
				return true
			}
		}
		return false
	}

	return provision.Step{
		Name:        entry.Name,
		SideEffects: nonEmpty(entry.Creates, entry.Command),
		Requires:    []string{entry.Interpreter},
		Check: func(context.Context) (bool, error) {
			return installed(), nil
		},
		Apply: func(ctx context.Context) error {
			logger.Info("Downloading %s installer from %s", entry.Name, entry.URL)
			path, err := download(ctx, b.deps.httpClient(), entry.URL, "install-*.sh")
			if err != nil {
				return err
			}
			defer os.Remove(path)

			args := append([]string{path}, entry.Args...)
			out, err := b.deps.Runner.Run(ctx, entry.Interpreter, args, runner.Options{
				Env:         entry.Env,
				Interactive: true,
			})
			if err != nil {
				return err
			}
			if err := out.Err(); err != nil {
				return err
			}
			if !installed() {
				return fmt.Errorf("%w: installer finished but %s is still missing", provision.ErrCommandFailure, firstNonEmpty(entry.Creates, entry.Command))
			}
			return nil
		},
	}
}

// brew expands an entry into one step per formula and cask.
func (b *builder) brew(entry config.Step) []provision.Step {
	var steps []provision.Step
	for _, f := range entry.Formulae {
		steps = append(steps, b.brewPackage(entry.Name, f, false))
	}
	for _, c := range entry.Casks {
		steps = append(steps, b.brewPackage(entry.Name, c, true))
	}
	return steps
}

func (b *builder) brewPackage(group, pkg string, cask bool) provision.Step {
	kind := "--formula"
	install := []string{"install", pkg}
	if cask {
		kind = "--cask"
		install = []string{"install", "--cask", pkg}
	}

	return provision.Step{
		Name:        group + ":" + pkg,
		Group:       group,
		SideEffects: []string{"brew " + kind + " " + pkg},
		Requires:    []string{"brew"},
		Check: func(ctx context.Context) (bool, error) {
			out, err := b.deps.Runner.Run(ctx, "brew", []string{"list", kind, pkg}, runner.Options{})
			if err != nil {
				return false, err
			}
			return out.Success(), nil
		},
		Apply: func(ctx context.Context) error {
			// Casks may ask for a password, so keep the terminal attached.
			out, err := b.deps.Runner.Run(ctx, "brew", install, runner.Options{Interactive: true})
			if err != nil {
				return err
			}
			return out.Err()
		},
	}
}
