// Package power keeps the machine awake while provisioning runs.
//
// The guard reads every power profile pmset reports (battery, AC, UPS) and
// restores each one with its own source flag, so a profile that was not in
// use during the run still gets its own values back.
package power

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/runner"
)

// Scope selects which power source pmset settings apply to.
type Scope string

const (
	ScopeAll     Scope = "all"
	ScopeBattery Scope = "battery"
	ScopeCharger Scope = "charger"
	// ScopeSystem sends the settings without a source flag.
	ScopeSystem Scope = "system"
)

// DefaultSettings are the timers disabled when no explicit list is configured.
var DefaultSettings = []string{"sleep", "displaysleep", "disksleep"}

// source is one power profile of `pmset -g custom`.
type source struct {
	header string
	flag   string
}

// sources in restore order.
var sources = []source{
	{header: "Battery Power", flag: "-b"},
	{header: "AC Power", flag: "-c"},
	{header: "UPS Power", flag: "-u"},
}

// ParseScope validates a configured scope. An empty value is an error:
// the scope has to be chosen explicitly.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScopeAll, ScopeBattery, ScopeCharger, ScopeSystem:
		return sc, nil
	case "":
		return "", errors.New("power scope is required (all, battery, charger or system)")
	default:
		return "", fmt.Errorf("unknown power scope %q (want all, battery, charger or system)", s)
	}
}

func (s Scope) flag() []string {
	switch s {
	case ScopeAll:
		return []string{"-a"}
	case ScopeBattery:
		return []string{"-b"}
	case ScopeCharger:
		return []string{"-c"}
	default:
		return nil
	}
}

// touches reports whether a write with this scope may change the profile of src.
// Without a source flag pmset picks the profile itself, so every one counts.
func (s Scope) touches(src source) bool {
	switch s {
	case ScopeBattery:
		return src.flag == "-b"
	case ScopeCharger:
		return src.flag == "-c"
	default:
		return true
	}
}

// profile holds the original timer values of one power source.
type profile struct {
	src    source
	values map[string]string
}

// Guard disables sleep timers on Acquire and puts the previous values back on release.
type Guard struct {
	runner   runner.Runner
	scope    Scope
	settings []string
}

// NewGuard creates a guard for the given settings, or DefaultSettings when none are given.
func NewGuard(r runner.Runner, scope Scope, settings ...string) *Guard {
	if len(settings) == 0 {
		settings = DefaultSettings
	}
	return &Guard{runner: r, scope: scope, settings: append([]string(nil), settings...)}
}

// Acquire records the timers of every affected power source and sets them
// to 0 for the configured scope. If that fails, the recorded values are
// written back before returning the error. The returned release restores
// each source with its own flag, at most once.
func (g *Guard) Acquire(ctx context.Context) (func(context.Context) error, error) {
	originals, err := g.read(ctx)
	if err != nil {
		return nil, err
	}

	disabled := make(map[string]string, len(g.settings))
	for _, k := range g.settings {
		disabled[k] = "0"
	}
	logger.Debug("Disabling %s (%s)", strings.Join(g.settings, ", "), g.scope)
	if err := g.write(ctx, g.scope.flag(), disabled); err != nil {
		if rerr := g.restore(context.WithoutCancel(ctx), originals); rerr != nil {
			return nil, errors.Join(err, fmt.Errorf("restore: %w", rerr))
		}
		return nil, err
	}
	logger.Info("Sleep disabled while provisioning runs")

	var once sync.Once
	release := func(ctx context.Context) error {
		var rerr error
		once.Do(func() {
			rerr = g.restore(ctx, originals)
			if rerr == nil {
				logger.Info("Power settings restored")
			}
		})
		return rerr
	}
	return release, nil
}

// read returns the original values of every source the scope touches.
func (g *Guard) read(ctx context.Context) ([]profile, error) {
	out, err := g.runner.Run(ctx, "pmset", []string{"-g", "custom"}, runner.Options{})
	if err != nil {
		return nil, fmt.Errorf("read power settings: %w", err)
	}
	if err := out.Err(); err != nil {
		return nil, fmt.Errorf("read power settings: %w", err)
	}

	reported := parseCustom(out.Stdout)
	var profiles []profile
	for _, src := range sources {
		current, ok := reported[src.header]
		if !ok || !g.scope.touches(src) {
			continue
		}
		values := make(map[string]string, len(g.settings))
		for _, k := range g.settings {
			v, ok := current[k]
			if !ok {
				return nil, fmt.Errorf("power setting %q not reported by pmset for %s", k, src.header)
			}
			values[k] = v
		}
		profiles = append(profiles, profile{src: src, values: values})
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("pmset reports no power profile for scope %s", g.scope)
	}
	return profiles, nil
}

// restore writes every recorded profile back, continuing past failures.
func (g *Guard) restore(ctx context.Context, profiles []profile) error {
	var errs []error
	for _, p := range profiles {
		if err := g.write(ctx, []string{p.src.flag}, p.values); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.src.header, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Guard) write(ctx context.Context, flag []string, values map[string]string) error {
	args := append([]string(nil), flag...)
	for _, k := range g.settings {
		args = append(args, k, values[k])
	}
	out, err := g.runner.Run(ctx, "pmset", args, runner.Options{Sudo: true, Interactive: true})
	if err != nil {
		return fmt.Errorf("pmset: %w", err)
	}
	return out.Err()
}

// parseCustom splits `pmset -g custom` into its "<Source> Power:" sections.
// Within a section, lines whose second field is not a number are ignored
// and trailing notes such as "(sleep prevented by ...)" are dropped.
func parseCustom(output string) map[string]map[string]string {
	sections := make(map[string]map[string]string)
	var current map[string]string
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		if header, ok := strings.CutSuffix(strings.TrimSpace(line), ":"); ok && !strings.HasPrefix(line, " ") {
			current = make(map[string]string)
			sections[header] = current
			continue
		}
		if current == nil {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if _, err := strconv.Atoi(fields[1]); err != nil {
			continue
		}
		current[fields[0]] = fields[1]
	}
	return sections
}
