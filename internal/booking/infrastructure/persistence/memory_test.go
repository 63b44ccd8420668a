package persistence

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
)

// MemoryRepository keeps bookings in process so the store contract runs
// without a database. It ignores transactions.
type MemoryRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]domain.Snapshot
}

// NewMemoryRepository creates an empty in-memory booking store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bookings: make(map[uuid.UUID]domain.Snapshot)}
}

func (r *MemoryRepository) InsertIfFree(ctx context.Context, b *domain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := b.Snapshot()
	blocked := availability.Interval{Start: s.BlockedStart, End: s.BlockedEnd}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[s.ID]; ok {
		return fmt.Errorf("insert booking: duplicate id %s", s.ID)
	}
	for _, other := range r.bookings {
		if other.ResourceKey != s.ResourceKey || !other.Status.Live() {
			continue
		}
		if blocked.Overlaps(availability.Interval{Start: other.BlockedStart, End: other.BlockedEnd}) {
			return domain.ErrSlotTaken
		}
	}
	r.bookings[s.ID] = s
	return nil
}

func (r *MemoryRepository) ListBusy(_ context.Context, resourceKey string, start, end time.Time) ([]availability.BusyInterval, error) {
	window := availability.Interval{Start: start, End: end}

	r.mu.Lock()
	defer r.mu.Unlock()
	var out []availability.BusyInterval
	for _, s := range r.bookings {
		if s.ResourceKey != resourceKey || !s.Status.Live() {
			continue
		}
		if window.Overlaps(availability.Interval{Start: s.BlockedStart, End: s.BlockedEnd}) {
			out = append(out, busyInterval(s.BlockedStart, s.BlockedEnd))
		}
	}
	slices.SortFunc(out, func(a, b availability.BusyInterval) int { return a.Start.Compare(b.Start) })
	return out, nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return domain.Rehydrate(s), nil
}

func (r *MemoryRepository) Update(_ context.Context, b *domain.Booking) error {
	s := b.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.bookings[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrBookingNotFound, s.ID)
	}
	if current.Version != s.Version {
		return fmt.Errorf("%w: booking %s changed concurrently", domain.ErrWriteConflict, s.ID)
	}
	current.Status = s.Status
	current.CancellationReason = s.CancellationReason
	current.UpdatedAt = s.UpdatedAt
	current.Version++
	r.bookings[s.ID] = current
	b.IncrementVersion()
	return nil
}

func (r *MemoryRepository) ListByEventType(_ context.Context, eventTypeID uuid.UUID, from, to time.Time) ([]*domain.Booking, error) {
	window := availability.Interval{Start: from, End: to}
	return r.list(func(s domain.Snapshot) bool {
		return s.EventTypeID == eventTypeID && window.Overlaps(availability.Interval{Start: s.Start, End: s.End})
	}, func(a, b domain.Snapshot) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	}), nil
}

func (r *MemoryRepository) ListByHost(_ context.Context, hostID uuid.UUID, from, to time.Time) ([]*domain.Booking, error) {
	window := availability.Interval{Start: from, End: to}
	return r.list(func(s domain.Snapshot) bool {
		return s.HostID == hostID && window.Overlaps(availability.Interval{Start: s.Start, End: s.End})
	}, func(a, b domain.Snapshot) int {
		return a.Start.Compare(b.Start)
	}), nil
}

func (r *MemoryRepository) ListByGroup(_ context.Context, groupID uuid.UUID) ([]*domain.Booking, error) {
	return r.list(func(s domain.Snapshot) bool {
		return groupID != uuid.Nil && s.RecurrenceGroupID == groupID
	}, func(a, b domain.Snapshot) int {
		return a.OccurrenceIndex - b.OccurrenceIndex
	}), nil
}

func (r *MemoryRepository) list(match func(domain.Snapshot) bool, order func(a, b domain.Snapshot) int) []*domain.Booking {
	r.mu.Lock()
	var matched []domain.Snapshot
	for _, s := range r.bookings {
		if match(s) {
			matched = append(matched, s)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(matched, order)
	out := make([]*domain.Booking, 0, len(matched))
	for _, s := range matched {
		out = append(out, domain.Rehydrate(s))
	}
	return out
}
