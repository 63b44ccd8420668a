package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	bookingQueries "github.com/felixgeelhaar/slotwise/internal/booking/application/queries"
)

var (
	bookingsFrom     string
	bookingsTo       string
	bookingsTimeZone string
	bookingsAll      bool
)

var bookingsCmd = &cobra.Command{
	Use:   "bookings <event-type-id>",
	Short: "List bookings of an event type",
	Long: `List the bookings of an event type that start in a range. Cancelled,
declined and rejected bookings are hidden unless --all is given.

Examples:
  slotwise bookings 6f1c...
  slotwise bookings 6f1c... --from 2026-03-01 --to 2026-04-01 --all`,
	Aliases: []string{"ls"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.ListBookings == nil {
			return errNotConnected
		}
		eventTypeID, err := parseID(args[0])
		if err != nil {
			return err
		}
		loc, err := location(bookingsTimeZone)
		if err != nil {
			return err
		}

		from := time.Now().In(loc)
		if bookingsFrom != "" {
			if from, err = parseBound(bookingsFrom, loc); err != nil {
				return err
			}
		}
		to := from.AddDate(0, 1, 0)
		if bookingsTo != "" {
			if to, err = parseBound(bookingsTo, loc); err != nil {
				return err
			}
		}

		views, err := app.ListBookings.Handle(cmd.Context(), bookingQueries.ListBookingsQuery{
			EventTypeID: eventTypeID,
			From:        from,
			To:          to,
			LiveOnly:    !bookingsAll,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(views) == 0 {
			fmt.Fprintln(out, "No bookings.")
			return nil
		}
		for _, v := range views {
			printBookingView(out, v, loc)
		}
		return nil
	},
}

func init() {
	bookingsCmd.Flags().StringVar(&bookingsFrom, "from", "", "range start (YYYY-MM-DD or RFC 3339, default now)")
	bookingsCmd.Flags().StringVar(&bookingsTo, "to", "", "range end (default one month after --from)")
	bookingsCmd.Flags().StringVar(&bookingsTimeZone, "tz", "", "display time zone")
	bookingsCmd.Flags().BoolVar(&bookingsAll, "all", false, "include cancelled, declined and rejected bookings")
	rootCmd.AddCommand(bookingsCmd)
}
