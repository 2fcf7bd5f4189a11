package rewards

import (
	"context"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/passport/internal/common"
)

// MemoryRepository — Store в памяти. Повторяет уникальность
// (user_id, reward_type, code) и условное гашение Repository.
type MemoryRepository struct {
	mu     sync.Mutex
	items  map[int64]*Reward
	nextID int64
	now    func() time.Time
	// inserts считает успешные вставки; тесты проверяют им отсутствие дублей.
	inserts int
}

// NewMemoryRepository создаёт пустое хранилище наград.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[int64]*Reward), now: time.Now}
}

func (m *MemoryRepository) ListByUser(_ context.Context, userID int64) ([]*Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Reward
	for _, r := range m.items {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryRepository) Insert(_ context.Context, r *Reward) (bool, error) {
	if err := r.Metadata.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.UserID == r.UserID && existing.Type == r.Type && existing.Code == r.Code {
			return false, nil
		}
	}
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = m.now()
	cp := *r
	m.items[r.ID] = &cp
	m.inserts++
	return true, nil
}

func (m *MemoryRepository) Get(_ context.Context, id int64) (*Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, common.ErrRewardNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) MarkRedeemed(_ context.Context, userID, id int64, at time.Time) (*Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok || r.UserID != userID || r.Status != StatusAvailable || !at.Before(r.ExpiresAt) {
		return nil, common.ErrRewardNotAvailable
	}
	r.Status = StatusRedeemed
	r.RedeemedAt = &at
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) ExpireBefore(_ context.Context, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.items {
		if r.Status == StatusAvailable && !at.Before(r.ExpiresAt) {
			r.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

// Inserts возвращает количество успешных вставок.
func (m *MemoryRepository) Inserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}
