package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	availabilityQueries "github.com/felixgeelhaar/slotwise/internal/availability/application/queries"
)

var (
	slotsFrom     string
	slotsTo       string
	slotsTimeZone string
	slotsDays     int
)

var slotsCmd = &cobra.Command{
	Use:   "slots <event-type-id>",
	Short: "List bookable slots of an event type",
	Long: `List the slots of an event type that are free in every connected
calendar and respect its notice, window and buffers.

Without --from the range starts now; without --to it spans --days days.

Examples:
  slotwise slots 6f1c... --tz Europe/Berlin
  slotwise slots 6f1c... --from 2026-03-02 --to 2026-03-09`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.ComputeSlots == nil {
			return errNotConnected
		}
		eventTypeID, err := parseID(args[0])
		if err != nil {
			return err
		}
		loc, err := location(slotsTimeZone)
		if err != nil {
			return err
		}

		from := time.Now().In(loc)
		if slotsFrom != "" {
			if from, err = parseBound(slotsFrom, loc); err != nil {
				return err
			}
		}
		to := from.AddDate(0, 0, slotsDays)
		if slotsTo != "" {
			if to, err = parseBound(slotsTo, loc); err != nil {
				return err
			}
		}

		result, err := app.ComputeSlots.Handle(cmd.Context(), availabilityQueries.ComputeSlotsQuery{
			EventTypeID: eventTypeID,
			From:        from,
			To:          to,
			TimeZone:    slotsTimeZone,
		})
		if err != nil {
			return err
		}

		if slotsTimeZone == "" {
			if scheduleLoc, err := time.LoadLocation(result.TimeZone); err == nil {
				loc = scheduleLoc
			}
		}

		out := cmd.OutOrStdout()
		printWarnings(out, result.Warnings)
		if len(result.Slots) == 0 {
			fmt.Fprintln(out, "No free slots in this range.")
			return nil
		}
		for _, slot := range result.Slots {
			fmt.Fprintf(out, "%s-%s  %s\n",
				slot.Start.In(loc).Format(slotLayout),
				slot.End.In(loc).Format(clockLayout),
				slot.Start.UTC().Format(time.RFC3339),
			)
		}
		fmt.Fprintf(out, "%d slots (%s)\n", len(result.Slots), result.TimeZone)
		return nil
	},
}

func init() {
	slotsCmd.Flags().StringVar(&slotsFrom, "from", "", "range start (YYYY-MM-DD or RFC 3339)")
	slotsCmd.Flags().StringVar(&slotsTo, "to", "", "range end (YYYY-MM-DD or RFC 3339)")
	slotsCmd.Flags().StringVar(&slotsTimeZone, "tz", "", "display time zone (default: the schedule's zone)")
	slotsCmd.Flags().IntVar(&slotsDays, "days", 7, "range length when --to is not given")
	rootCmd.AddCommand(slotsCmd)
}
