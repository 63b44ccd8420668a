package persistence

import (
	"github.com/felixgeelhaar/slotwise/internal/booking/domain"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
)

// NewRepository returns the booking store for the connection's driver.
func NewRepository(conn database.Connection) domain.Repository {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresRepository(conn)
	}
	return NewSQLiteRepository(conn)
}
