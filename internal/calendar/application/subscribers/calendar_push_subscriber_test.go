package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
	calendarApp "github.com/felixgeelhaar/slotwise/internal/calendar/application"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

type mockWriterProvider struct {
	mock.Mock
}

func (m *mockWriterProvider) WritersFor(ctx context.Context, hostID uuid.UUID) ([]calendarApp.EventWriter, error) {
	args := m.Called(ctx, hostID)
	writers, _ := args.Get(0).([]calendarApp.EventWriter)
	return writers, args.Error(1)
}

type mockEventTypeFinder struct {
	mock.Mock
}

func (m *mockEventTypeFinder) FindByID(ctx context.Context, id uuid.UUID) (*availability.EventType, error) {
	args := m.Called(ctx, id)
	et, _ := args.Get(0).(*availability.EventType)
	return et, args.Error(1)
}

type recordingWriter struct {
	name   string
	err    error
	events []calendarApp.CalendarEvent
}

func (w *recordingWriter) Name() string { return w.name }

func (w *recordingWriter) CreateEvent(_ context.Context, event calendarApp.CalendarEvent) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.events = append(w.events, event)
	return "ext-" + event.BookingID.String(), nil
}

var slotStart = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func acceptedEnvelope(t *testing.T, payload bookingDomain.BookingPayload) *eventbus.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &eventbus.Envelope{
		EventID:       uuid.New(),
		AggregateID:   payload.BookingID,
		AggregateType: "booking",
		RoutingKey:    bookingDomain.RoutingKeyAccepted,
		OccurredAt:    slotStart.Add(-time.Hour),
		Payload:       raw,
	}
}

func testEventType(t *testing.T, hostID uuid.UUID) *availability.EventType {
	t.Helper()
	et, err := availability.NewEventType(availability.EventTypeParams{
		HostID:     hostID,
		ScheduleID: uuid.New(),
		Slug:       "intro",
		Title:      "Intro call",
		Duration:   30 * time.Minute,
	}, slotStart.Add(-48*time.Hour))
	require.NoError(t, err)
	return et
}

func TestCalendarPushSubscriber_RoutingKeys(t *testing.T) {
	s := NewCalendarPushSubscriber(&mockWriterProvider{}, nil, nil, nil)
	assert.Equal(t, []string{bookingDomain.RoutingKeyAccepted}, s.RoutingKeys())
}

func TestCalendarPushSubscriber_PushesToEveryWriter(t *testing.T) {
	ctx := context.Background()
	hostID := uuid.New()
	et := testEventType(t, hostID)
	payload := bookingDomain.BookingPayload{
		BookingID:   uuid.New(),
		EventTypeID: et.ID(),
		HostID:      hostID,
		Start:       slotStart,
		End:         slotStart.Add(30 * time.Minute),
		Attendee:    bookingDomain.Attendee{Name: "Ada", Email: "ada@example.com"},
		Status:      bookingDomain.StatusAccepted,
	}

	primary := &recordingWriter{name: "google:primary"}
	work := &recordingWriter{name: "microsoft:work"}
	writers := &mockWriterProvider{}
	writers.On("WritersFor", mock.Anything, hostID).Return([]calendarApp.EventWriter{primary, work}, nil)
	eventTypes := &mockEventTypeFinder{}
	eventTypes.On("FindByID", mock.Anything, et.ID()).Return(et, nil)
	metrics := observability.NewInMemoryMetrics()

	s := NewCalendarPushSubscriber(writers, eventTypes, nil, metrics)
	require.NoError(t, s.Handle(ctx, acceptedEnvelope(t, payload)))

	require.Len(t, primary.events, 1)
	require.Len(t, work.events, 1)
	got := primary.events[0]
	assert.Equal(t, payload.BookingID, got.BookingID)
	assert.Equal(t, "Intro call with Ada", got.Summary)
	assert.True(t, got.Start.Equal(payload.Start))
	assert.True(t, got.End.Equal(payload.End))
	assert.Equal(t, "ada@example.com", got.AttendeeEmail)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricCalendarPushed, observability.T("calendar", "google:primary")))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricCalendarPushed, observability.T("calendar", "microsoft:work")))
	writers.AssertExpectations(t)
	eventTypes.AssertExpectations(t)
}

func TestCalendarPushSubscriber_PartialFailure(t *testing.T) {
	ctx := context.Background()
	hostID := uuid.New()
	payload := bookingDomain.BookingPayload{
		BookingID: uuid.New(),
		HostID:    hostID,
		Start:     slotStart,
		End:       slotStart.Add(time.Hour),
	}

	ok := &recordingWriter{name: "caldav:/home/"}
	failing := &recordingWriter{name: "google:primary", err: errors.New("quota exceeded")}
	writers := &mockWriterProvider{}
	writers.On("WritersFor", mock.Anything, hostID).Return([]calendarApp.EventWriter{failing, ok}, nil)
	eventTypes := &mockEventTypeFinder{}
	eventTypes.On("FindByID", mock.Anything, uuid.Nil).Return(nil, errors.New("not found"))
	metrics := observability.NewInMemoryMetrics()

	s := NewCalendarPushSubscriber(writers, eventTypes, nil, metrics)
	err := s.Handle(ctx, acceptedEnvelope(t, payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	require.Len(t, ok.events, 1)
	assert.Equal(t, "Booking", ok.events[0].Summary)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricCalendarPushFailures, observability.T("calendar", "google:primary")))
}

func TestCalendarPushSubscriber_NoWriters(t *testing.T) {
	hostID := uuid.New()
	writers := &mockWriterProvider{}
	writers.On("WritersFor", mock.Anything, hostID).Return(nil, nil)

	s := NewCalendarPushSubscriber(writers, nil, nil, nil)
	err := s.Handle(context.Background(), acceptedEnvelope(t, bookingDomain.BookingPayload{BookingID: uuid.New(), HostID: hostID}))
	assert.NoError(t, err)
}

func TestCalendarPushSubscriber_ResolveErrorWithoutWriters(t *testing.T) {
	hostID := uuid.New()
	writers := &mockWriterProvider{}
	writers.On("WritersFor", mock.Anything, hostID).Return(nil, errors.New("decrypt credentials"))

	s := NewCalendarPushSubscriber(writers, nil, nil, nil)
	err := s.Handle(context.Background(), acceptedEnvelope(t, bookingDomain.BookingPayload{BookingID: uuid.New(), HostID: hostID}))
	assert.ErrorContains(t, err, "decrypt credentials")
}

func TestCalendarPushSubscriber_BadPayload(t *testing.T) {
	s := NewCalendarPushSubscriber(&mockWriterProvider{}, nil, nil, nil)
	err := s.Handle(context.Background(), &eventbus.Envelope{Payload: json.RawMessage(`{"start": 12}`)})
	assert.ErrorContains(t, err, "decode booking payload")
}
