package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/prompt"
	"mac-bootstrap/internal/provision"
	"mac-bootstrap/internal/runner"
)

// environment is what a run touches outside the process.
// Tests swap every field for a fake.
type environment struct {
	newRunner func(searchPath []string) runner.Runner // Builds the command runner for the configured search path
	euid      func() int                              // Effective user id, checked by the privilege guard
	prompter  func() prompt.Prompter                  // Asks for missing identity fields
	clipboard func(string) error                      // Receives the generated public key
}

// defaultEnv wires the real system: os/exec, the terminal and the pasteboard.
var defaultEnv = environment{
	newRunner: func(searchPath []string) runner.Runner { return runner.New(searchPath...) },
	euid:      os.Geteuid,
	prompter:  prompt.New,
	clipboard: clipboard.WriteAll,
}

// newRootCmd builds the CLI. Without a subcommand it provisions the machine.
func newRootCmd(env environment) *cobra.Command {
	var (
		debug      bool   // --debug: verbose logging
		configPath string // --config: YAML file, empty for the built-in one
	)

	root := &cobra.Command{
		Use:   "mac-bootstrap",                 // The name of the CLI tool
		Short: "Provision a macOS workstation", // Short description shown in help output
		Long: `Installs developer tooling and applies OS preferences.

Every step checks whether its effect is already in place first, so running
it again only does what is missing. Run it as your own user: sudo is asked
for only by the steps that need it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // a failed step is not a usage error
		SilenceErrors: true, // execute logs errors itself

		// PersistentPreRun runs before any subcommand and sets up logging.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(debug)
		},

		// RunE provisions the machine. Ctrl-C or SIGTERM cancels the run
		// context so the orchestrator stops and restores power settings.
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bootstrap(ctx, env, configPath)
		},
	}

	// Global flags, shared with the steps subcommand.
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a configuration file (default: built-in)")

	// `steps` lists what a run would do (defined in steps.go).
	root.AddCommand(newStepsCmd(&configPath))
	return root
}

// Execute is the entry point called from main. It runs the CLI against the
// real system and exits with 0 on success and 1 on a halt, a privilege
// violation or a configuration error.
func Execute() {
	os.Exit(execute(defaultEnv, os.Args[1:]))
}

// execute runs the CLI with args and returns the process exit code.
func execute(env environment, args []string) int {
	root := newRootCmd(env)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		// Halts and privilege violations were already reported by the orchestrator.
		if !errors.Is(err, provision.ErrHalted) && !errors.Is(err, provision.ErrPrerequisiteViolation) {
			logger.Error("%v", err)
		}
		return 1
	}
	return 0
}
