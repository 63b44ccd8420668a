package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
)

// BusySource names booking footprints in busy-time results.
const BusySource = "bookings"

const bookingColumns = `id, event_type_id, host_id, resource_key, start_at, end_at,
	blocked_start, blocked_end, attendee_name, attendee_email, attendee_time_zone,
	status, recurrence_group_id, occurrence_index, cancellation_reason,
	version, created_at, updated_at`

// liveStatuses is the SQL list of statuses that block a footprint.
var liveStatuses = fmt.Sprintf("('%s', '%s')", domain.StatusPending, domain.StatusAccepted)

func nullGroup(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// bookingRow holds the scanned columns. Each dialect fills the instants
// in its own way.
type bookingRow struct {
	ID                 string
	EventTypeID        string
	HostID             string
	ResourceKey        string
	Start              time.Time
	End                time.Time
	BlockedStart       time.Time
	BlockedEnd         time.Time
	Attendee           domain.Attendee
	Status             string
	GroupID            sql.NullString
	OccurrenceIndex    int
	CancellationReason string
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (r bookingRow) toDomain() (*domain.Booking, error) {
	s := domain.Snapshot{
		ResourceKey:        r.ResourceKey,
		Start:              r.Start,
		End:                r.End,
		BlockedStart:       r.BlockedStart,
		BlockedEnd:         r.BlockedEnd,
		Attendee:           r.Attendee,
		Status:             domain.Status(r.Status),
		OccurrenceIndex:    r.OccurrenceIndex,
		CancellationReason: r.CancellationReason,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	var err error
	if s.ID, err = uuid.Parse(r.ID); err != nil {
		return nil, fmt.Errorf("booking id: %w", err)
	}
	if s.EventTypeID, err = uuid.Parse(r.EventTypeID); err != nil {
		return nil, fmt.Errorf("booking event type id: %w", err)
	}
	if s.HostID, err = uuid.Parse(r.HostID); err != nil {
		return nil, fmt.Errorf("booking host id: %w", err)
	}
	if r.GroupID.Valid {
		if s.RecurrenceGroupID, err = uuid.Parse(r.GroupID.String); err != nil {
			return nil, fmt.Errorf("booking recurrence group: %w", err)
		}
	}
	return domain.Rehydrate(s), nil
}

func busyInterval(start, end time.Time) availability.BusyInterval {
	return availability.BusyInterval{
		Interval: availability.Interval{Start: start.UTC(), End: end.UTC()},
		Source:   BusySource,
	}
}
