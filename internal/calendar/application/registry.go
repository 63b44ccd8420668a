package application

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
)

// CalendarEvent is a booking as written to an external calendar.
type CalendarEvent struct {
	// BookingID doubles as the idempotency key on the provider side.
	BookingID     uuid.UUID
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeName  string
	AttendeeEmail string
}

// EventWriter pushes accepted bookings into an external calendar.
type EventWriter interface {
	Name() string
	// CreateEvent returns the provider's id of the written event.
	CreateEvent(ctx context.Context, event CalendarEvent) (string, error)
}

// Adapter is a calendar that can both report busy time and receive events.
type Adapter interface {
	availability.BusyTimeSource
	EventWriter
}

// SourceFactory builds a busy-time source for one connected calendar.
type SourceFactory func(ctx context.Context, cal *domain.ConnectedCalendar, creds Credentials) (availability.BusyTimeSource, error)

// WriterFactory builds an event writer for one connected calendar.
type WriterFactory func(ctx context.Context, cal *domain.ConnectedCalendar, creds Credentials) (EventWriter, error)

// AdapterFactory builds a two-way adapter for one connected calendar.
type AdapterFactory func(ctx context.Context, cal *domain.ConnectedCalendar, creds Credentials) (Adapter, error)

// ProviderRegistry maps provider types to adapter factories.
type ProviderRegistry struct {
	mu      sync.RWMutex
	sources map[domain.ProviderType]SourceFactory
	writers map[domain.ProviderType]WriterFactory
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		sources: make(map[domain.ProviderType]SourceFactory),
		writers: make(map[domain.ProviderType]WriterFactory),
	}
}

// RegisterSource registers a busy-time source factory.
func (r *ProviderRegistry) RegisterSource(provider domain.ProviderType, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[provider] = factory
}

// RegisterWriter registers an event writer factory.
func (r *ProviderRegistry) RegisterWriter(provider domain.ProviderType, factory WriterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[provider] = factory
}

// RegisterAdapter registers factory as both source and writer.
func (r *ProviderRegistry) RegisterAdapter(provider domain.ProviderType, factory AdapterFactory) {
	r.RegisterSource(provider, func(ctx context.Context, cal *domain.ConnectedCalendar, creds Credentials) (availability.BusyTimeSource, error) {
		return factory(ctx, cal, creds)
	})
	r.RegisterWriter(provider, func(ctx context.Context, cal *domain.ConnectedCalendar, creds Credentials) (EventWriter, error) {
		return factory(ctx, cal, creds)
	})
}

// CreateSource builds the busy-time source for cal.
func (r *ProviderRegistry) CreateSource(ctx context.Context, cal *domain.ConnectedCalendar, creds Credentials) (availability.BusyTimeSource, error) {
	r.mu.RLock()
	factory, ok := r.sources[cal.Provider()]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no busy-time source registered for provider: %s", cal.Provider())
	}
	return factory(ctx, cal, creds)
}

// CreateWriter builds the event writer for cal.
func (r *ProviderRegistry) CreateWriter(ctx context.Context, cal *domain.ConnectedCalendar, creds Credentials) (EventWriter, error) {
	r.mu.RLock()
	factory, ok := r.writers[cal.Provider()]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no event writer registered for provider: %s", cal.Provider())
	}
	return factory(ctx, cal, creds)
}

// HasProvider reports whether any factory is registered for provider.
func (r *ProviderRegistry) HasProvider(provider domain.ProviderType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, hasSource := r.sources[provider]
	_, hasWriter := r.writers[provider]
	return hasSource || hasWriter
}

// SupportedProviders returns the registered providers, sorted.
func (r *ProviderRegistry) SupportedProviders() []domain.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[domain.ProviderType]bool)
	for p := range r.sources {
		seen[p] = true
	}
	for p := range r.writers {
		seen[p] = true
	}
	result := make([]domain.ProviderType, 0, len(seen))
	for p := range seen {
		result = append(result, p)
	}
	slices.Sort(result)
	return result
}
