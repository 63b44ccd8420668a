package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common booking workflows.
func RegisterPrompts(srv *mcp.Server) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("book_meeting").
		Description("Find a free slot for an event type and book it for an attendee.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return &mcp.PromptResult{
				Description: "Book a meeting",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: bookMeetingText(args),
						},
					},
				},
			}, nil
		})

	srv.Prompt("reschedule_booking").
		Description("Move an existing booking to another free slot.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return &mcp.PromptResult{
				Description: "Reschedule a booking",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`I need to move booking %s. Please:

1. Use slots.compute for the same event type to find free slots in the next two weeks
2. Show me the three earliest options in my time zone
3. After I pick one, book it with booking.create
4. Only when the new booking succeeded, cancel the old one with booking.cancel and the reason "rescheduled"

Never cancel the old booking first. If booking.create reports "rejected", the slot was taken in the meantime; offer the next option instead.`, orPlaceholder(args["booking_id"], "<booking id>")),
						},
					},
				},
			}, nil
		})

	return nil
}

func bookMeetingText(args map[string]string) string {
	return fmt.Sprintf(`Help me book a meeting of event type %s for %s.

1. Use slots.compute for the next seven days in time zone %s
2. If the result carries warnings, tell me which calendars could not be checked
3. Suggest the three earliest slots
4. Book the slot I choose with booking.create

If booking.create reports "rejected", the slot is no longer available. Compute slots again and offer the next option.`,
		orPlaceholder(args["event_type_id"], "<event type id>"),
		orPlaceholder(args["attendee_email"], "the attendee"),
		orPlaceholder(args["time_zone"], "UTC"),
	)
}

func orPlaceholder(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}
