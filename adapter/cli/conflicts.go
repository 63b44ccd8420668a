package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	conflictsFrom     string
	conflictsTo       string
	conflictsTimeZone string
	conflictsFail     bool
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <host-id>",
	Short: "Find bookings that clash with calendar events",
	Long: `Check a host's live bookings against every connected busy-time calendar
and list external events that overlap them, buffers included.

Examples:
  slotwise conflicts 2b9e...
  slotwise conflicts 2b9e... --from 2026-03-01 --to 2026-03-15 --fail`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.DetectConflicts == nil {
			return errNotConnected
		}
		hostID, err := parseID(args[0])
		if err != nil {
			return err
		}
		loc, err := location(conflictsTimeZone)
		if err != nil {
			return err
		}

		from := time.Now().In(loc)
		if conflictsFrom != "" {
			if from, err = parseBound(conflictsFrom, loc); err != nil {
				return err
			}
		}
		to := from.AddDate(0, 0, 14)
		if conflictsTo != "" {
			if to, err = parseBound(conflictsTo, loc); err != nil {
				return err
			}
		}

		report, err := app.DetectConflicts.Detect(cmd.Context(), hostID, from, to)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, s := range report.Skipped {
			fmt.Fprintf(out, "warning: %s unavailable: %v\n", s.Source, s.Err)
		}
		for _, c := range report.Conflicts {
			fmt.Fprintf(out, "%s  %s-%s  clashes with %s %s-%s\n",
				c.Booking.ID(),
				c.Booking.Start().In(loc).Format(slotLayout),
				c.Booking.End().In(loc).Format(clockLayout),
				c.Source,
				c.Busy.Start.In(loc).Format(clockLayout),
				c.Busy.End.In(loc).Format(clockLayout),
			)
		}
		if !report.HasConflicts() {
			fmt.Fprintf(out, "No conflicts in %d bookings.\n", report.Checked)
			return nil
		}
		fmt.Fprintf(out, "%d conflicts in %d bookings.\n", len(report.Conflicts), report.Checked)
		if conflictsFail {
			return fmt.Errorf("found %d calendar conflicts", len(report.Conflicts))
		}
		return nil
	},
}

func init() {
	conflictsCmd.Flags().StringVar(&conflictsFrom, "from", "", "range start (YYYY-MM-DD or RFC 3339, default now)")
	conflictsCmd.Flags().StringVar(&conflictsTo, "to", "", "range end (default two weeks after --from)")
	conflictsCmd.Flags().StringVar(&conflictsTimeZone, "tz", "", "display time zone")
	conflictsCmd.Flags().BoolVar(&conflictsFail, "fail", false, "exit with an error when conflicts are found")
	rootCmd.AddCommand(conflictsCmd)
}
