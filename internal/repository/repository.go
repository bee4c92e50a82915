package repository

import (
	"tixgate/internal/database"
)

type Repositories struct {
	Bookings *BookingRepository
	Users    *UserRepository
	Events   *EventRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Bookings: NewBookingRepository(db),
		Users:    NewUserRepository(db),
		Events:   NewEventRepository(db),
	}
}
