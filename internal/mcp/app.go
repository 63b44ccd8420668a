package mcp

import (
	mcplocal "github.com/felixgeelhaar/slotwise/adapter/mcp"
	"github.com/felixgeelhaar/slotwise/internal/app"
)

// ToolDependencies binds the MCP tools to the container's handlers.
func ToolDependencies(container *app.Container) mcplocal.ToolDependencies {
	return mcplocal.ToolDependencies{
		ComputeSlots:   container.ComputeSlots,
		CreateBooking:  container.CreateBooking,
		CancelBooking:  container.CancelBooking,
		ConfirmBooking: container.ConfirmBooking,
		ListBookings:   container.ListBookings,
	}
}
