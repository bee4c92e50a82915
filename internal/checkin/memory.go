package checkin

import (
	"context"
	"sort"
	"sync"

	"tixgate/internal/models"
)

// MemoryStore is an in-process Store. Its compare-and-set is atomic with
// respect to itself, which makes it a faithful stand-in for the database
// in tests and local tooling.
type MemoryStore struct {
	mu       sync.Mutex
	bookings map[string]models.Booking
}

func NewMemoryStore(bookings ...models.Booking) *MemoryStore {
	s := &MemoryStore{bookings: make(map[string]models.Booking, len(bookings))}
	for _, b := range bookings {
		s.bookings[b.ID] = b
	}
	return s
}

// Put inserts or replaces a booking.
func (s *MemoryStore) Put(b models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// ByUser returns the bookings of one user ordered by id.
func (s *MemoryStore) ByUser(userID string) []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *MemoryStore) ConditionalCheckIn(ctx context.Context, id string, mark models.CheckInMark) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	switch {
	case !ok:
		return nil, ErrBookingNotFound
	case b.CheckedIn:
		return nil, ErrConditionFailed
	case !Redeemable(b.Status):
		return nil, &NotRedeemableError{Status: b.Status}
	}

	at := mark.At
	by := mark.StaffID
	name := mark.StaffName
	b.CheckedIn = true
	b.CheckedInAt = &at
	b.CheckedInBy = &by
	b.CheckedInByName = &name
	b.Status = models.BookingCheckedIn
	b.UpdatedAt = at
	s.bookings[id] = b

	return &b, nil
}
