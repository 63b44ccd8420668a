package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	bookingCommands "github.com/felixgeelhaar/slotwise/internal/booking/application/commands"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
)

var (
	transitionReason   string
	transitionTimeZone string
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <booking-id>",
	Short: "Cancel a booking and free its slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.CancelBooking == nil {
			return errNotConnected
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		b, err := app.CancelBooking.Handle(cmd.Context(), bookingCommands.CancelBookingCommand{BookingID: id, Reason: transitionReason})
		if err != nil {
			return err
		}
		return printTransition(cmd, "Cancelled.", b)
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <booking-id>",
	Short: "Confirm a booking that waits for the host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.ConfirmBooking == nil {
			return errNotConnected
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		b, err := app.ConfirmBooking.Handle(cmd.Context(), bookingCommands.ConfirmBookingCommand{BookingID: id})
		if err != nil {
			return err
		}
		return printTransition(cmd, "Confirmed.", b)
	},
}

var declineCmd = &cobra.Command{
	Use:   "decline <booking-id>",
	Short: "Decline a booking that waits for the host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.DeclineBooking == nil {
			return errNotConnected
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		b, err := app.DeclineBooking.Handle(cmd.Context(), bookingCommands.DeclineBookingCommand{BookingID: id, Reason: transitionReason})
		if err != nil {
			return err
		}
		return printTransition(cmd, "Declined.", b)
	},
}

func printTransition(cmd *cobra.Command, done string, b *bookingDomain.Booking) error {
	loc, err := location(transitionTimeZone)
	if err != nil {
		return err
	}
	printBooking(cmd.OutOrStdout(), b, loc)
	fmt.Fprintln(cmd.OutOrStdout(), done)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{cancelCmd, confirmCmd, declineCmd} {
		c.Flags().StringVar(&transitionTimeZone, "tz", "", "display time zone")
		rootCmd.AddCommand(c)
	}
	cancelCmd.Flags().StringVar(&transitionReason, "reason", "", "cancellation reason")
	declineCmd.Flags().StringVar(&transitionReason, "reason", "", "reason given to the attendee")
}
