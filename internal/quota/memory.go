package quota

import (
	"context"
	"sync"
	"time"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	users map[int64]*models.User
	now   func() time.Time

	// SaveErr, when set, fails every Save.
	SaveErr error
	saves   int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{users: make(map[int64]*models.User), now: now}
}

// GetOrCreate returns a copy of the stored user, creating it when absent.
func (s *MemoryStore) GetOrCreate(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		u = models.NewUser(id, s.now())
		s.users[id] = u
	}
	return clone(u), nil
}

// Save stores a copy of u.
func (s *MemoryStore) Save(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.saves++
	s.users[u.ID] = clone(u)
	return nil
}

// Put replaces the stored user.
func (s *MemoryStore) Put(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = clone(u)
}

// Get returns a copy of the stored user or nil.
func (s *MemoryStore) Get(id int64) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return clone(u)
	}
	return nil
}

// Saves reports how many successful saves happened.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func clone(u *models.User) *models.User {
	c := *u
	c.DailyCounters = make(models.DailyCounters, len(u.DailyCounters))
	for k, v := range u.DailyCounters {
		c.DailyCounters[k] = v
	}
	if u.PremiumUntil != nil {
		t := *u.PremiumUntil
		c.PremiumUntil = &t
	}
	return &c
}
