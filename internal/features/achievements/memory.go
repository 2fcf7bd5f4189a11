package achievements

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository — Store в памяти.
type MemoryRepository struct {
	mu     sync.Mutex
	items  []Unlock
	nextID int64
}

// NewMemoryRepository создаёт пустое хранилище достижений.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) ListByUser(_ context.Context, userID int64) ([]Unlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Unlock
	for _, u := range m.items {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryRepository) Insert(_ context.Context, u *Unlock) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.UserID == u.UserID && existing.Code == u.Code {
			return false, nil
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.UnlockedAt = time.Now()
	m.items = append(m.items, *u)
	return true, nil
}
