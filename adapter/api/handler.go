package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	availabilityQueries "github.com/felixgeelhaar/slotwise/internal/availability/application/queries"
	availabilityServices "github.com/felixgeelhaar/slotwise/internal/availability/application/services"
	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/application/commands"
	bookingQueries "github.com/felixgeelhaar/slotwise/internal/booking/application/queries"
	"github.com/felixgeelhaar/slotwise/internal/booking/application/services"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
)

// SlotsComputer computes bookable slots.
type SlotsComputer interface {
	Handle(ctx context.Context, query availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error)
}

// BookingCreator books a slot.
type BookingCreator interface {
	Handle(ctx context.Context, cmd commands.CreateBookingCommand) (*commands.CreateBookingResult, error)
}

// BookingCanceller cancels a booking.
type BookingCanceller interface {
	Handle(ctx context.Context, cmd commands.CancelBookingCommand) (*bookingDomain.Booking, error)
}

// BookingConfirmer accepts a pending booking.
type BookingConfirmer interface {
	Handle(ctx context.Context, cmd commands.ConfirmBookingCommand) (*bookingDomain.Booking, error)
}

// BookingDecliner rejects a pending booking.
type BookingDecliner interface {
	Handle(ctx context.Context, cmd commands.DeclineBookingCommand) (*bookingDomain.Booking, error)
}

// BookingLister lists bookings.
type BookingLister interface {
	Handle(ctx context.Context, query bookingQueries.ListBookingsQuery) ([]bookingQueries.BookingView, error)
}

// HandlerConfig holds dependencies for the handler.
type HandlerConfig struct {
	ComputeSlots   SlotsComputer
	CreateBooking  BookingCreator
	CancelBooking  BookingCanceller
	ConfirmBooking BookingConfirmer
	DeclineBooking BookingDecliner
	ListBookings   BookingLister
	Logger         *slog.Logger
}

// Handler serves the slot and booking routes.
type Handler struct {
	computeSlots   SlotsComputer
	createBooking  BookingCreator
	cancelBooking  BookingCanceller
	confirmBooking BookingConfirmer
	declineBooking BookingDecliner
	listBookings   BookingLister
	logger         *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		computeSlots:   cfg.ComputeSlots,
		createBooking:  cfg.CreateBooking,
		cancelBooking:  cfg.CancelBooking,
		confirmBooking: cfg.ConfirmBooking,
		declineBooking: cfg.DeclineBooking,
		listBookings:   cfg.ListBookings,
		logger:         cfg.Logger,
	}
}

// WarningResponse is a degraded busy-time source.
type WarningResponse struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// SlotsResponse is the body of GET /v1/event-types/:id/slots.
type SlotsResponse struct {
	EventTypeID uuid.UUID                    `json:"event_type_id"`
	TimeZone    string                       `json:"time_zone"`
	Slots       []availability.CandidateSlot `json:"slots"`
	Warnings    []WarningResponse            `json:"warnings,omitempty"`
}

// ComputeSlots handles GET /v1/event-types/:id/slots?from&to&tz
func (h *Handler) ComputeSlots(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.writeError(c, badRequest("invalid event type id"))
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.computeSlots.Handle(c.Request.Context(), availabilityQueries.ComputeSlotsQuery{
		EventTypeID: id,
		From:        from,
		To:          to,
		TimeZone:    c.Query("tz"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	slots := result.Slots
	if slots == nil {
		slots = []availability.CandidateSlot{}
	}
	c.JSON(http.StatusOK, SlotsResponse{
		EventTypeID: result.EventTypeID,
		TimeZone:    result.TimeZone,
		Slots:       slots,
		Warnings:    warnings(result.Warnings),
	})
}

// CreateBookingRequest is the body of POST /v1/bookings.
type CreateBookingRequest struct {
	EventTypeID uuid.UUID                `json:"event_type_id"`
	Start       time.Time                `json:"start" binding:"required"`
	Attendee    bookingDomain.Attendee   `json:"attendee"`
	Recurrence  *services.RecurrenceSpec `json:"recurrence,omitempty"`
}

// FailureResponse is one occurrence that could not be booked.
type FailureResponse struct {
	Index int                        `json:"index"`
	Slot  availability.CandidateSlot `json:"slot"`
	Error string                     `json:"error"`
}

// RecurrenceResponse reports a recurring booking.
type RecurrenceResponse struct {
	GroupID  uuid.UUID                    `json:"group_id"`
	Booked   []bookingQueries.BookingView `json:"booked"`
	Failures []FailureResponse            `json:"failures,omitempty"`
}

// BookingResponse is the body returned for a created booking.
type BookingResponse struct {
	Booking    *bookingQueries.BookingView `json:"booking,omitempty"`
	Recurrence *RecurrenceResponse         `json:"recurrence,omitempty"`
	Warnings   []WarningResponse           `json:"warnings,omitempty"`
}

// CreateBooking handles POST /v1/bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, badRequest("invalid request body: %v", err))
		return
	}

	result, err := h.createBooking.Handle(c.Request.Context(), commands.CreateBookingCommand{
		EventTypeID: req.EventTypeID,
		SlotStart:   req.Start,
		Attendee:    req.Attendee,
		Recurrence:  req.Recurrence,
	})

	var partial *commands.PartialRecurrenceFailure
	switch {
	case errors.As(err, &partial) && result != nil:
		c.JSON(http.StatusMultiStatus, bookingResponse(result))
		return
	case err != nil:
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookingResponse(result))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// CancelBooking handles POST /v1/bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	id, req, ok := h.transitionRequest(c)
	if !ok {
		return
	}
	b, err := h.cancelBooking.Handle(c.Request.Context(), commands.CancelBookingCommand{BookingID: id, Reason: req.Reason})
	h.writeBooking(c, b, err)
}

// ConfirmBooking handles POST /v1/bookings/:id/confirm
func (h *Handler) ConfirmBooking(c *gin.Context) {
	id, _, ok := h.transitionRequest(c)
	if !ok {
		return
	}
	b, err := h.confirmBooking.Handle(c.Request.Context(), commands.ConfirmBookingCommand{BookingID: id})
	h.writeBooking(c, b, err)
}

// DeclineBooking handles POST /v1/bookings/:id/decline
func (h *Handler) DeclineBooking(c *gin.Context) {
	id, req, ok := h.transitionRequest(c)
	if !ok {
		return
	}
	b, err := h.declineBooking.Handle(c.Request.Context(), commands.DeclineBookingCommand{BookingID: id, Reason: req.Reason})
	h.writeBooking(c, b, err)
}

// ListBookings handles GET /v1/event-types/:id/bookings?from&to&all. Only
// live bookings are listed unless all is true.
func (h *Handler) ListBookings(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.writeError(c, badRequest("invalid event type id"))
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	all, err := strconv.ParseBool(c.DefaultQuery("all", "false"))
	if err != nil {
		h.writeError(c, badRequest("all must be true or false"))
		return
	}
	views, err := h.listBookings.Handle(c.Request.Context(), bookingQueries.ListBookingsQuery{
		EventTypeID: id,
		From:        from,
		To:          to,
		LiveOnly:    !all,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if views == nil {
		views = []bookingQueries.BookingView{}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": views})
}

func (h *Handler) transitionRequest(c *gin.Context) (uuid.UUID, reasonRequest, bool) {
	var req reasonRequest
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.writeError(c, badRequest("invalid booking id"))
		return uuid.Nil, req, false
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.writeError(c, badRequest("invalid request body: %v", err))
			return uuid.Nil, req, false
		}
	}
	return id, req, true
}

func (h *Handler) writeBooking(c *gin.Context, b *bookingDomain.Booking, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	view := bookingQueries.NewBookingView(b)
	c.JSON(http.StatusOK, BookingResponse{Booking: &view})
}

func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, badRequest("from and to are required (RFC 3339)")
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, badRequest("invalid from")
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, badRequest("invalid to")
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, badRequest("from must be before to")
	}
	return from, to, nil
}

func warnings(ws []availabilityServices.SourceWarning) []WarningResponse {
	if len(ws) == 0 {
		return nil
	}
	out := make([]WarningResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, WarningResponse{Source: w.Source, Error: w.Err.Error()})
	}
	return out
}

func bookingResponse(result *commands.CreateBookingResult) BookingResponse {
	resp := BookingResponse{Warnings: warnings(result.Warnings)}
	if result.Booking != nil {
		view := bookingQueries.NewBookingView(result.Booking)
		resp.Booking = &view
	}
	if r := result.Recurrence; r != nil {
		rec := &RecurrenceResponse{GroupID: r.GroupID, Booked: make([]bookingQueries.BookingView, 0, len(r.Booked))}
		for _, b := range r.Booked {
			rec.Booked = append(rec.Booked, bookingQueries.NewBookingView(b))
		}
		for _, f := range r.Failures {
			rec.Failures = append(rec.Failures, FailureResponse{Index: f.Index, Slot: f.Slot, Error: failureMessage(f.Err)})
		}
		resp.Recurrence = rec
	}
	return resp
}

func failureMessage(err error) string {
	if rejected, ok := bookingDomain.AsRejected(err); ok {
		return rejected.Reason
	}
	return err.Error()
}
