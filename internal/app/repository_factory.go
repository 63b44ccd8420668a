package app

import (
	"fmt"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	availabilityPersistence "github.com/felixgeelhaar/slotwise/internal/availability/infrastructure/persistence"
	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
	bookingPersistence "github.com/felixgeelhaar/slotwise/internal/booking/infrastructure/persistence"
	calendarDomain "github.com/felixgeelhaar/slotwise/internal/calendar/domain"
	calendarPersistence "github.com/felixgeelhaar/slotwise/internal/calendar/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/slotwise/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/outbox"
)

// Repositories groups the stores of every bounded context, all bound to
// the same connection so they share its unit of work.
type Repositories struct {
	Schedules         availability.ScheduleRepository
	EventTypes        availability.EventTypeRepository
	Bookings          bookingDomain.Repository
	ConnectedCalendar calendarDomain.ConnectedCalendarRepository
	Outbox            outbox.Repository
	UnitOfWork        sharedApplication.UnitOfWork
}

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	conn   database.Connection
	driver database.Driver
	clock  sharedDomain.Clock
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn database.Connection, clock sharedDomain.Clock) *RepositoryFactory {
	return &RepositoryFactory{
		conn:   conn,
		driver: conn.Driver(),
		clock:  clock,
	}
}

// Build creates every repository for the configured driver.
func (f *RepositoryFactory) Build() (*Repositories, error) {
	switch f.driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}

	return &Repositories{
		Schedules:         availabilityPersistence.NewScheduleRepository(f.conn),
		EventTypes:        availabilityPersistence.NewEventTypeRepository(f.conn),
		Bookings:          bookingPersistence.NewRepository(f.conn),
		ConnectedCalendar: calendarPersistence.NewConnectedCalendarRepository(f.conn),
		Outbox:            outbox.NewRepository(f.conn, f.clock),
		UnitOfWork:        database.NewUnitOfWork(f.conn),
	}, nil
}
