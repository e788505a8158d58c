package cmd

import (
	"context"
	"errors"
	"fmt"

	"mac-bootstrap/internal/config"
	"mac-bootstrap/internal/installer"
	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/power"
	"mac-bootstrap/internal/prefs"
	"mac-bootstrap/internal/provision"
	"mac-bootstrap/internal/state"
)

// bootstrap loads the configuration, runs every step and saves the run record.
// Failures of steps declared "continue" are only reported; the returned error
// means the run could not start or was halted.
func bootstrap(ctx context.Context, env environment, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	r := env.newRunner(cfg.Path)
	reg, err := installer.Build(cfg, installer.Deps{
		Runner:    r,
		Defaults:  prefs.NewDefaults(r),
		Directory: prefs.NewDirectory(r),
		Prompter:  env.prompter(),
		Clipboard: env.clipboard,
	})
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	opts := []provision.Option{
		provision.WithPrivilegeCheck(env.euid),
		provision.WithLookPath(r.LookPath),
	}
	if cfg.KeepAwake.Enabled {
		scope, err := power.ParseScope(cfg.KeepAwake.Scope)
		if err != nil {
			return fmt.Errorf("configuration: %w", err)
		}
		opts = append(opts, provision.WithResource(power.NewGuard(r, scope, cfg.KeepAwake.Settings...)))
	}

	logger.Info("Provisioning %d steps", reg.Len())
	report, runErr := provision.NewOrchestrator(reg, opts...).Run(ctx)
	if errors.Is(runErr, provision.ErrPrerequisiteViolation) {
		return runErr
	}

	provision.PrintSummary(report)
	if err := state.Save(cfg.ReportFile, report); err != nil {
		logger.Warn("Could not save the run record: %v", err)
	} else {
		logger.Debug("Run record saved to %s", cfg.ReportFile)
	}
	return runErr
}
