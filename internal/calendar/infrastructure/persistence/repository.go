package persistence

import (
	"github.com/felixgeelhaar/slotwise/internal/calendar/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
)

// NewConnectedCalendarRepository returns the store for the connection's driver.
func NewConnectedCalendarRepository(conn database.Connection) domain.ConnectedCalendarRepository {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresConnectedCalendarRepository(conn)
	}
	return NewSQLiteConnectedCalendarRepository(conn)
}
