package prefs

import (
	"context"
	"path"
	"strings"

	"mac-bootstrap/internal/runner"
)

// Directory is a Store for local account attributes (Directory Services).
// The domain is a record path such as /Users/alice and the key an attribute
// such as UserShell.
type Directory struct {
	runner runner.Runner
}

// NewDirectory creates a Directory store.
func NewDirectory(r runner.Runner) *Directory {
	return &Directory{runner: r}
}

// Get runs `dscl . -read <record> <attribute>`, which prints "UserShell: /bin/zsh".
func (d *Directory) Get(ctx context.Context, record, attr string) (string, bool, error) {
	out, err := d.runner.Run(ctx, "dscl", []string{".", "-read", record, attr}, runner.Options{})
	if err != nil {
		return "", false, err
	}
	if !out.Success() {
		return "", false, nil
	}
	value, found := strings.CutPrefix(strings.TrimSpace(out.Stdout), attr+":")
	if !found {
		return "", false, nil
	}
	return strings.TrimSpace(value), true, nil
}

// Set changes an attribute. The login shell goes through chsh, which asks for
// the user's password; anything else needs `sudo dscl . -create`.
func (d *Directory) Set(ctx context.Context, record, attr string, v Value) error {
	var (
		out runner.Outcome
		err error
	)
	if attr == "UserShell" {
		out, err = d.runner.Run(ctx, "chsh", []string{"-s", v.Data, path.Base(record)}, runner.Options{Interactive: true})
	} else {
		out, err = d.runner.Run(ctx, "dscl", []string{".", "-create", record, attr, v.Data}, runner.Options{Sudo: true})
	}
	if err != nil {
		return err
	}
	return out.Err()
}

var _ Store = (*Directory)(nil)
