package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database and broker connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Health == nil {
			return errNotConnected
		}

		report := app.Health.Check(cmd.Context())
		out := cmd.OutOrStdout()
		for _, name := range app.Health.Names() {
			check := report.Checks[name]
			line := fmt.Sprintf("%-10s %s", name, check.Status)
			if check.Message != "" {
				line += "  " + check.Message
			}
			fmt.Fprintln(out, line)
		}
		if report.Status == observability.HealthStatusUnhealthy {
			return errors.New("unhealthy")
		}
		fmt.Fprintln(out, "ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
