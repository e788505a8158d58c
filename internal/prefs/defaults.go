package prefs

import (
	"context"
	"fmt"
	"strings"

	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/runner"
)

// Defaults is a Store backed by the macOS `defaults` tool.
type Defaults struct {
	runner runner.Runner
}

// NewDefaults creates a Defaults store.
func NewDefaults(r runner.Runner) *Defaults {
	return &Defaults{runner: r}
}

// Get runs `defaults read <domain> <key>`. A non-zero exit means the key is unset.
func (d *Defaults) Get(ctx context.Context, domain, key string) (string, bool, error) {
	out, err := d.runner.Run(ctx, "defaults", []string{"read", domain, key}, runner.Options{})
	if err != nil {
		return "", false, err
	}
	if !out.Success() {
		logger.Debug("%s %s is not set", domain, key)
		return "", false, nil
	}
	return strings.TrimSpace(out.Stdout), true, nil
}

// Set runs `defaults write <domain> <key> -<type> <value>`.
func (d *Defaults) Set(ctx context.Context, domain, key string, v Value) error {
	args := []string{"write", domain, key}
	switch v.Type {
	case TypeBool:
		b, _ := parseBool(v.Data)
		args = append(args, "-bool", fmt.Sprint(b))
	case TypeInt:
		args = append(args, "-int", v.Data)
	case TypeFloat:
		args = append(args, "-float", v.Data)
	default:
		args = append(args, "-string", v.Data)
	}

	out, err := d.runner.Run(ctx, "defaults", args, runner.Options{})
	if err != nil {
		return err
	}
	return out.Err()
}

var _ Store = (*Defaults)(nil)
