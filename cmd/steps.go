package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mac-bootstrap/internal/config"
	"mac-bootstrap/internal/installer"
	"mac-bootstrap/internal/state"
)

// newStepsCmd lists the steps a run would execute, with their status from
// the last run when a record exists.
func newStepsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the provisioning steps in run order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			reg, err := installer.Build(cfg, installer.Deps{})
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}

			last := map[string]string{}
			if rec, err := state.Load(cfg.ReportFile); err == nil {
				for _, s := range rec.Steps {
					last[s.Name] = s.Status
				}
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTEP\tON FAILURE\tREQUIRES\tAFTER\tLAST RUN")
			for i, s := range reg.Steps() {
				status := last[s.Name]
				if status == "" {
					status = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					i+1, s.Name, s.OnFailure, orDash(s.Requires), orDash(s.After), status)
			}
			return w.Flush()
		},
	}
}

func orDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ",")
}
