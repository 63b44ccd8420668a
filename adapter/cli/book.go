package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	bookingCommands "github.com/felixgeelhaar/slotwise/internal/booking/application/commands"
	"github.com/felixgeelhaar/slotwise/internal/booking/application/services"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
)

var (
	bookStart       string
	bookName        string
	bookEmail       string
	bookTimeZone    string
	bookRepeatCount int
	bookRepeatUntil string
)

var bookCmd = &cobra.Command{
	Use:   "book <event-type-id>",
	Short: "Book a slot",
	Long: `Book the slot of an event type starting at --start for an attendee.

With --repeat or --until the slot is repeated on the event type's
recurrence. Occurrences that cannot be booked are listed; the others
stay booked.

Examples:
  slotwise book 6f1c... --start 2026-03-03T09:00:00+01:00 --name "Ada Lovelace" --email ada@example.com
  slotwise book 6f1c... --start 2026-03-03T09:00:00Z --name Ada --email ada@example.com --repeat 4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.CreateBooking == nil {
			return errNotConnected
		}
		eventTypeID, err := parseID(args[0])
		if err != nil {
			return err
		}
		start, err := time.Parse(time.RFC3339, bookStart)
		if err != nil {
			return fmt.Errorf("invalid --start, use RFC 3339: %w", err)
		}
		loc, err := location(bookTimeZone)
		if err != nil {
			return err
		}

		command := bookingCommands.CreateBookingCommand{
			EventTypeID: eventTypeID,
			SlotStart:   start,
			Attendee: bookingDomain.Attendee{
				Name:     bookName,
				Email:    bookEmail,
				TimeZone: bookTimeZone,
			},
		}
		if bookRepeatCount > 0 || bookRepeatUntil != "" {
			spec := &services.RecurrenceSpec{Count: bookRepeatCount}
			if bookRepeatUntil != "" {
				if spec.Until, err = parseBound(bookRepeatUntil, loc); err != nil {
					return err
				}
			}
			command.Recurrence = spec
		}

		result, err := app.CreateBooking.Handle(cmd.Context(), command)
		out := cmd.OutOrStdout()
		var partial *bookingCommands.PartialRecurrenceFailure
		switch {
		case errors.As(err, &partial) && result != nil:
			printCreateResult(cmd, result, loc)
			return fmt.Errorf("%d of %d occurrences could not be booked",
				len(partial.Result.Failures), len(partial.Result.Failures)+len(partial.Result.Booked))
		case err != nil:
			if _, ok := bookingDomain.AsRejected(err); ok {
				return fmt.Errorf("booking rejected: %s", rejectionMessage(err))
			}
			return err
		}
		printCreateResult(cmd, result, loc)
		fmt.Fprintln(out, "Booked.")
		return nil
	},
}

func printCreateResult(cmd *cobra.Command, result *bookingCommands.CreateBookingResult, loc *time.Location) {
	out := cmd.OutOrStdout()
	printWarnings(out, result.Warnings)
	if result.Booking != nil {
		printBooking(out, result.Booking, loc)
	}
	if r := result.Recurrence; r != nil {
		fmt.Fprintf(out, "group %s\n", r.GroupID)
		for _, b := range r.Booked {
			printBooking(out, b, loc)
		}
		for _, f := range r.Failures {
			fmt.Fprintf(out, "occurrence %d at %s: %s\n", f.Index, f.Slot.Start.In(loc).Format(slotLayout), rejectionMessage(f.Err))
		}
	}
}

func init() {
	bookCmd.Flags().StringVar(&bookStart, "start", "", "slot start (RFC 3339)")
	bookCmd.Flags().StringVar(&bookName, "name", "", "attendee name")
	bookCmd.Flags().StringVar(&bookEmail, "email", "", "attendee email")
	bookCmd.Flags().StringVar(&bookTimeZone, "tz", "", "attendee time zone")
	bookCmd.Flags().IntVar(&bookRepeatCount, "repeat", 0, "number of occurrences to book")
	bookCmd.Flags().StringVar(&bookRepeatUntil, "until", "", "book occurrences up to this date")
	_ = bookCmd.MarkFlagRequired("start")
	_ = bookCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(bookCmd)
}
