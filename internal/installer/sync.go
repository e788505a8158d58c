package installer

import (
	"context"
	"fmt"
	"os"

	"mac-bootstrap/internal/config"
	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/prefs"
	"mac-bootstrap/internal/profile"
	"mac-bootstrap/internal/provision"
	"mac-bootstrap/internal/runner"
)

// preferences writes every value of the entry that differs from the store,
// then restarts each named process once.
func (b *builder) preferences(entry config.Step) provision.Step {
	var sideEffects []string
	usesDefaults := false
	for _, p := range entry.Preferences {
		sideEffects = append(sideEffects, p.Domain+" "+p.Key)
		if p.Store == config.StoreDefaults {
			usesDefaults = true
		}
	}
	var requires []string
	if usesDefaults {
		requires = []string{"defaults"}
	}

	// pending returns the preferences whose current value differs.
	pending := func(ctx context.Context) ([]config.Preference, error) {
		var out []config.Preference
		for _, p := range entry.Preferences {
			current, ok, err := b.store(p).Get(ctx, p.Domain, p.Key)
			if err != nil {
				return nil, fmt.Errorf("read %s %s: %w", p.Domain, p.Key, err)
			}
			value := prefs.Value{Type: p.Type, Data: p.Value}
			if ok && value.Matches(current) {
				logger.Debug("Setting %s %s is already %s", p.Domain, p.Key, current)
				continue
			}
			out = append(out, p)
		}
		return out, nil
	}

	return provision.Step{
		Name:        entry.Name,
		SideEffects: sideEffects,
		Requires:    requires,
		Check: func(ctx context.Context) (bool, error) {
			todo, err := pending(ctx)
			return len(todo) == 0, err
		},
		Apply: func(ctx context.Context) error {
			todo, err := pending(ctx)
			if err != nil {
				return err
			}
			var restart []string
			seen := map[string]bool{}
			for _, p := range todo {
				value := prefs.Value{Type: p.Type, Data: p.Value}
				if err := b.store(p).Set(ctx, p.Domain, p.Key, value); err != nil {
					return err
				}
				logger.Info("Applied setting: %s %s = %s", p.Domain, p.Key, value)
				if p.Restart != "" && !seen[p.Restart] {
					seen[p.Restart] = true
					restart = append(restart, p.Restart)
				}
			}
			for _, proc := range restart {
				b.restart(ctx, proc)
			}
			return nil
		},
	}
}

func (b *builder) store(p config.Preference) prefs.Store {
	if p.Store == config.StoreDirectory {
		return b.deps.Directory
	}
	return b.deps.Defaults
}

// restart asks a process to relaunch so it picks up new settings. A process
// that is not running is not an error worth failing the step for.
func (b *builder) restart(ctx context.Context, proc string) {
	out, err := b.deps.Runner.Run(ctx, "killall", []string{proc}, runner.Options{})
	if err == nil {
		err = out.Err()
	}
	if err != nil {
		logger.Warn("Could not restart %s: %v", proc, err)
		return
	}
	logger.Debug("Restarted %s", proc)
}

// profile appends the entry's lines to a shell profile when they are absent.
func (b *builder) profile(entry config.Step) provision.Step {
	return provision.Step{
		Name:        entry.Name,
		SideEffects: []string{entry.File},
		Check: func(context.Context) (bool, error) {
			missing, err := profile.Missing(entry.File, entry.Lines)
			return len(missing) == 0, err
		},
		Apply: func(context.Context) error {
			_, err := profile.EnsureLines(entry.File, entry.Lines)
			return err
		},
	}
}

// directories creates each path that does not exist yet.
func (b *builder) directories(entry config.Step) provision.Step {
	return provision.Step{
		Name:        entry.Name,
		SideEffects: append([]string(nil), entry.Paths...),
		Check: func(context.Context) (bool, error) {
			for _, p := range entry.Paths {
				info, err := os.Stat(p)
				if os.IsNotExist(err) {
					return false, nil
				}
				if err != nil {
					return false, err
				}
				if !info.IsDir() {
					return false, fmt.Errorf("%s exists and is not a directory", p)
				}
			}
			return true, nil
		},
		Apply: func(context.Context) error {
			for _, p := range entry.Paths {
				if exists(p) {
					continue
				}
				if err := os.MkdirAll(p, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", p, err)
				}
				logger.Info("Created directory %s", p)
			}
			return nil
		},
	}
}
