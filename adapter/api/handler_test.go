package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	availabilityQueries "github.com/felixgeelhaar/slotwise/internal/availability/application/queries"
	availabilityServices "github.com/felixgeelhaar/slotwise/internal/availability/application/services"
	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/application/commands"
	bookingQueries "github.com/felixgeelhaar/slotwise/internal/booking/application/queries"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

type slotsFunc func(context.Context, availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error)

func (f slotsFunc) Handle(ctx context.Context, q availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error) {
	return f(ctx, q)
}

type createFunc func(context.Context, commands.CreateBookingCommand) (*commands.CreateBookingResult, error)

func (f createFunc) Handle(ctx context.Context, cmd commands.CreateBookingCommand) (*commands.CreateBookingResult, error) {
	return f(ctx, cmd)
}

type cancelFunc func(context.Context, commands.CancelBookingCommand) (*bookingDomain.Booking, error)

func (f cancelFunc) Handle(ctx context.Context, cmd commands.CancelBookingCommand) (*bookingDomain.Booking, error) {
	return f(ctx, cmd)
}

type confirmFunc func(context.Context, commands.ConfirmBookingCommand) (*bookingDomain.Booking, error)

func (f confirmFunc) Handle(ctx context.Context, cmd commands.ConfirmBookingCommand) (*bookingDomain.Booking, error) {
	return f(ctx, cmd)
}

type declineFunc func(context.Context, commands.DeclineBookingCommand) (*bookingDomain.Booking, error)

func (f declineFunc) Handle(ctx context.Context, cmd commands.DeclineBookingCommand) (*bookingDomain.Booking, error) {
	return f(ctx, cmd)
}

type listFunc func(context.Context, bookingQueries.ListBookingsQuery) ([]bookingQueries.BookingView, error)

func (f listFunc) Handle(ctx context.Context, q bookingQueries.ListBookingsQuery) ([]bookingQueries.BookingView, error) {
	return f(ctx, q)
}

func newBooking(t *testing.T, start time.Time) *bookingDomain.Booking {
	t.Helper()
	et, err := availability.NewEventType(availability.EventTypeParams{
		HostID:     uuid.New(),
		ScheduleID: uuid.New(),
		Slug:       "intro",
		Duration:   30 * time.Minute,
	}, now)
	require.NoError(t, err)
	b, err := bookingDomain.NewBooking(et, et.SlotAt(start), bookingDomain.Attendee{Name: "Ada", Email: "ada@example.com"}, now)
	require.NoError(t, err)
	return b
}

func newTestServer(cfg HandlerConfig) *Server {
	return NewServer(DefaultServerConfig(), NewHandler(cfg), nil, nil)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error APIError `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealthz(t *testing.T) {
	s := newTestServer(HandlerConfig{})
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestHealthz_Unhealthy(t *testing.T) {
	health := observability.NewHealthRegistry()
	health.Register("database", func(context.Context) observability.HealthCheckResult {
		return observability.HealthCheckResult{Status: observability.HealthStatusUnhealthy, Message: "down"}
	})
	s := NewServer(DefaultServerConfig(), NewHandler(HandlerConfig{}), health, nil)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestComputeSlots(t *testing.T) {
	eventTypeID := uuid.New()
	slotStart := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)

	var got availabilityQueries.ComputeSlotsQuery
	s := newTestServer(HandlerConfig{
		ComputeSlots: slotsFunc(func(_ context.Context, q availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error) {
			got = q
			return &availabilityQueries.SlotsResult{
				EventTypeID: q.EventTypeID,
				TimeZone:    "Europe/Berlin",
				Slots:       []availability.CandidateSlot{{Start: slotStart, End: slotStart.Add(30 * time.Minute)}},
				Warnings: []availabilityServices.SourceWarning{
					{Source: "google:primary", Err: sharedDomain.ErrSourceUnavailable},
				},
			}, nil
		}),
	})

	target := fmt.Sprintf("/v1/event-types/%s/slots?from=2026-03-03T00:00:00Z&to=2026-03-04T00:00:00Z&tz=Europe/Berlin", eventTypeID)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set(HeaderCorrelationID, "corr-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-123", rec.Header().Get(HeaderCorrelationID))
	assert.Equal(t, eventTypeID, got.EventTypeID)
	assert.Equal(t, "Europe/Berlin", got.TimeZone)
	assert.True(t, got.From.Equal(time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)))

	var body SlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Slots, 1)
	assert.True(t, body.Slots[0].Start.Equal(slotStart))
	require.Len(t, body.Warnings, 1)
	assert.Equal(t, "google:primary", body.Warnings[0].Source)
}

func TestComputeSlots_Errors(t *testing.T) {
	s := newTestServer(HandlerConfig{
		ComputeSlots: slotsFunc(func(context.Context, availabilityQueries.ComputeSlotsQuery) (*availabilityQueries.SlotsResult, error) {
			return nil, availability.ErrEventTypeNotFound
		}),
	})
	id := uuid.New()

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"bad id", "/v1/event-types/not-a-uuid/slots?from=2026-03-03T00:00:00Z&to=2026-03-04T00:00:00Z", http.StatusBadRequest},
		{"missing range", fmt.Sprintf("/v1/event-types/%s/slots", id), http.StatusBadRequest},
		{"reversed range", fmt.Sprintf("/v1/event-types/%s/slots?from=2026-03-04T00:00:00Z&to=2026-03-03T00:00:00Z", id), http.StatusBadRequest},
		{"unknown event type", fmt.Sprintf("/v1/event-types/%s/slots?from=2026-03-03T00:00:00Z&to=2026-03-04T00:00:00Z", id), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCreateBooking(t *testing.T) {
	start := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	b := newBooking(t, start)

	var got commands.CreateBookingCommand
	s := newTestServer(HandlerConfig{
		CreateBooking: createFunc(func(_ context.Context, cmd commands.CreateBookingCommand) (*commands.CreateBookingResult, error) {
			got = cmd
			return &commands.CreateBookingResult{Booking: b}, nil
		}),
	})

	body := fmt.Sprintf(`{"event_type_id":%q,"start":"2026-03-03T10:00:00+01:00","attendee":{"name":"Ada","email":"ada@example.com","time_zone":"Europe/Berlin"}}`, b.EventTypeID())
	rec := do(t, s, http.MethodPost, "/v1/bookings", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, b.EventTypeID(), got.EventTypeID)
	assert.True(t, got.SlotStart.Equal(start))
	assert.Equal(t, "ada@example.com", got.Attendee.Email)
	assert.Nil(t, got.Recurrence)

	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Booking)
	assert.Equal(t, b.ID(), resp.Booking.ID)
}

func TestCreateBooking_ErrorMapping(t *testing.T) {
	start := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	rejected := newBooking(t, start)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", fmt.Errorf("%w: attendee email is required", sharedDomain.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{"unknown event type", availability.ErrEventTypeNotFound, http.StatusNotFound, "not_found"},
		{
			"slot taken",
			bookingDomain.NewRejectedError(bookingDomain.RejectionSlotUnavailable, bookingDomain.ReasonSlotTaken, rejected, bookingDomain.ErrSlotTaken),
			http.StatusConflict, "slot_unavailable",
		},
		{
			"retries exhausted",
			bookingDomain.NewRejectedError(bookingDomain.RejectionResourceExhausted, bookingDomain.ReasonExhausted, rejected, bookingDomain.ErrWriteConflict),
			http.StatusConflict, "resource_exhausted",
		},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(HandlerConfig{
				CreateBooking: createFunc(func(context.Context, commands.CreateBookingCommand) (*commands.CreateBookingResult, error) {
					return nil, tt.err
				}),
			})
			rec := do(t, s, http.MethodPost, "/v1/bookings", `{"event_type_id":"`+uuid.NewString()+`","start":"2026-03-03T09:00:00Z"}`)
			assert.Equal(t, tt.status, rec.Code)
			apiErr := decodeError(t, rec)
			assert.Equal(t, tt.code, apiErr.Code)
			if tt.code == "slot_unavailable" {
				assert.Equal(t, "slot no longer available", apiErr.Message)
			}
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, apiErr.Message, "disk on fire")
			}
		})
	}
}

func TestCreateBooking_InvalidBody(t *testing.T) {
	s := newTestServer(HandlerConfig{})
	rec := do(t, s, http.MethodPost, "/v1/bookings", `{"start": 42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBooking_PartialRecurrence(t *testing.T) {
	start := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	first := newBooking(t, start)
	failedSlot := availability.CandidateSlot{Start: start.Add(7 * 24 * time.Hour), End: start.Add(7*24*time.Hour + 30*time.Minute)}
	result := &commands.CreateBookingResult{
		Booking: first,
		Recurrence: &commands.RecurrenceResult{
			GroupID: first.ID(),
			Booked:  []*bookingDomain.Booking{first},
			Failures: []commands.OccurrenceFailure{{
				Index: 1,
				Slot:  failedSlot,
				Err:   bookingDomain.NewRejectedError(bookingDomain.RejectionSlotUnavailable, bookingDomain.ReasonSlotTaken, nil, bookingDomain.ErrSlotTaken),
			}},
		},
	}

	s := newTestServer(HandlerConfig{
		CreateBooking: createFunc(func(_ context.Context, cmd commands.CreateBookingCommand) (*commands.CreateBookingResult, error) {
			require.NotNil(t, cmd.Recurrence)
			assert.Equal(t, 2, cmd.Recurrence.Count)
			return result, &commands.PartialRecurrenceFailure{Result: result.Recurrence}
		}),
	})

	body := `{"event_type_id":"` + uuid.NewString() + `","start":"2026-03-03T09:00:00Z","recurrence":{"count":2}}`
	rec := do(t, s, http.MethodPost, "/v1/bookings", body)
	require.Equal(t, http.StatusMultiStatus, rec.Code)

	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Recurrence)
	assert.Equal(t, first.ID(), resp.Recurrence.GroupID)
	assert.Len(t, resp.Recurrence.Booked, 1)
	require.Len(t, resp.Recurrence.Failures, 1)
	assert.Equal(t, 1, resp.Recurrence.Failures[0].Index)
	assert.Equal(t, "slot no longer available", resp.Recurrence.Failures[0].Error)
}

func TestBookingTransitions(t *testing.T) {
	start := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	b := newBooking(t, start)
	require.NoError(t, b.Cancel("host unavailable", now))

	s := newTestServer(HandlerConfig{
		CancelBooking: cancelFunc(func(_ context.Context, cmd commands.CancelBookingCommand) (*bookingDomain.Booking, error) {
			assert.Equal(t, "host unavailable", cmd.Reason)
			return b, nil
		}),
		ConfirmBooking: confirmFunc(func(context.Context, commands.ConfirmBookingCommand) (*bookingDomain.Booking, error) {
			return nil, bookingDomain.ErrInvalidTransition
		}),
		DeclineBooking: declineFunc(func(context.Context, commands.DeclineBookingCommand) (*bookingDomain.Booking, error) {
			return nil, bookingDomain.ErrBookingNotFound
		}),
	})

	rec := do(t, s, http.MethodPost, "/v1/bookings/"+b.ID().String()+"/cancel", `{"reason":"host unavailable"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, bookingDomain.StatusCancelled, resp.Booking.Status)

	rec = do(t, s, http.MethodPost, "/v1/bookings/"+b.ID().String()+"/confirm", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/bookings/"+uuid.NewString()+"/decline", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/bookings/nope/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBookings(t *testing.T) {
	eventTypeID := uuid.New()
	var got bookingQueries.ListBookingsQuery
	s := newTestServer(HandlerConfig{
		ListBookings: listFunc(func(_ context.Context, q bookingQueries.ListBookingsQuery) ([]bookingQueries.BookingView, error) {
			got = q
			return nil, nil
		}),
	})
	path := fmt.Sprintf("/v1/event-types/%s/bookings?from=2026-03-01T00:00:00Z&to=2026-04-01T00:00:00Z", eventTypeID)

	rec := do(t, s, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bookings":[]}`, rec.Body.String())
	assert.Equal(t, eventTypeID, got.EventTypeID)
	assert.True(t, got.LiveOnly, "live bookings only by default")

	rec = do(t, s, http.MethodGet, path+"&all=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, got.LiveOnly)

	rec = do(t, s, http.MethodGet, path+"&all=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
