// Package memory is an in-process implementation of repository.Store used by
// tests and by the server when database.driver is "memory". One mutex
// serializes every transaction, so check-then-reserve sequences are atomic.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"

	"github.com/google/uuid"
)

type state struct {
	items        map[string]domain.InventoryItem
	bookings     map[string]domain.Booking
	bookingItems []domain.BookingItem
	users        map[string]domain.User
	roles        []domain.RoleAssignment
}

func (s *state) clone() *state {
	return &state{
		items:        maps.Clone(s.items),
		bookings:     maps.Clone(s.bookings),
		bookingItems: slices.Clone(s.bookingItems),
		users:        maps.Clone(s.users),
		roles:        slices.Clone(s.roles),
	}
}

// access runs fn against a state. The store-level accessor takes the mutex;
// the transaction accessor runs on the working copy already guarded by it.
type access func(fn func(st *state) error) error

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		st: &state{
			items:    make(map[string]domain.InventoryItem),
			bookings: make(map[string]domain.Booking),
			users:    make(map[string]domain.User),
		},
		now: time.Now,
	}
}

func (s *Store) locked(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) Repositories() repository.Repositories {
	return s.repositoriesFor(s.locked)
}

func (s *Store) repositoriesFor(a access) repository.Repositories {
	return repository.Repositories{
		Inventory: &inventoryRepository{do: a},
		Bookings:  &bookingRepository{do: a, now: s.now},
		Items:     &bookingItemRepository{do: a, now: s.now},
		Roles:     &roleRepository{do: a},
		Users:     &userRepository{do: a},
	}
}

// WithinTx runs fn on a copy of the data and publishes the copy only when fn
// succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	direct := func(f func(st *state) error) error { return f(work) }
	if err := fn(ctx, s.repositoriesFor(direct)); err != nil {
		return err
	}
	s.st = work
	return nil
}

// AddItem seeds an inventory row. An empty ID is generated.
func (s *Store) AddItem(it domain.InventoryItem) string {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	_ = s.locked(func(st *state) error {
		st.items[it.ID] = it
		return nil
	})
	return it.ID
}

func (s *Store) AddUser(u domain.User) {
	_ = s.locked(func(st *state) error {
		st.users[u.ID] = u
		return nil
	})
}

func (s *Store) AddRole(ra domain.RoleAssignment) {
	_ = s.locked(func(st *state) error {
		st.roles = append(st.roles, ra)
		return nil
	})
}

// Item returns a snapshot of an inventory row for assertions.
func (s *Store) Item(id string) (domain.InventoryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.st.items[id]
	return it, ok
}
