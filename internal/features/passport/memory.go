package passport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/passport/internal/common"
	"serotonyl.ru/passport/internal/features/tiers"
)

// Шаги транзакции, на которых MemoryStore умеет имитировать сбой.
const (
	StepLockProfile       = "LockProfile"
	StepInsertCheckIn     = "InsertCheckIn"
	StepInsertStamp       = "InsertStamp"
	StepInsertTransaction = "InsertCreditTransaction"
	StepRecompute         = "RecomputeAggregates"
	StepApplyAward        = "ApplyAward"
	StepUpdateTier        = "UpdateTier"
)

type pairKey struct {
	userID  int64
	eventID int64
}

// memState — всё содержимое MemoryStore; копируется целиком для отката.
type memState struct {
	profiles map[int64]Profile
	checkins map[pairKey]CheckIn
	stamps   []Stamp
	ledger   []CreditTransaction
	nextID   int64
}

func (s memState) clone() memState {
	c := memState{
		profiles: make(map[int64]Profile, len(s.profiles)),
		checkins: make(map[pairKey]CheckIn, len(s.checkins)),
		stamps:   append([]Stamp(nil), s.stamps...),
		ledger:   append([]CreditTransaction(nil), s.ledger...),
		nextID:   s.nextID,
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.checkins {
		c.checkins[k] = v
	}
	return c
}

// MemoryStore — Store в памяти для тестов и локального запуска.
// Транзакция держит мьютекс целиком, поэтому транзакции выполняются по очереди,
// а при ошибке состояние восстанавливается из снимка.
type MemoryStore struct {
	mu          sync.Mutex
	state       memState
	initialTier tiers.Tier
	now         func() time.Time
	failures    map[string]error
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore(initialTier tiers.Tier) *MemoryStore {
	return &MemoryStore{
		state: memState{
			profiles: make(map[int64]Profile),
			checkins: make(map[pairKey]CheckIn),
		},
		initialTier: initialTier,
		now:         time.Now,
		failures:    make(map[string]error),
	}
}

// SetClock подменяет часы хранилища.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailOn заставляет шаг step возвращать err. nil снимает сбой.
func (m *MemoryStore) FailOn(step string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, step)
		return
	}
	m.failures[step] = err
}

func (m *MemoryStore) nextID() int64 {
	m.state.nextID++
	return m.state.nextID
}

func (m *MemoryStore) handleTaken(handle string, userID int64) bool {
	for id, p := range m.state.profiles {
		if id != userID && p.Handle == handle {
			return true
		}
	}
	return false
}

func (m *MemoryStore) EnsureProfile(_ context.Context, userID int64, handle string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.state.profiles[userID]; ok {
		return &p, nil
	}
	if handle == "" {
		handle = DefaultHandle(userID)
	}
	if m.handleTaken(handle, userID) {
		handle = fmt.Sprintf("%s-%d", handle, userID)
	}
	now := m.now()
	p := Profile{
		UserID:      userID,
		Handle:      handle,
		CurrentTier: m.initialTier,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.state.profiles[userID] = p
	return &p, nil
}

func (m *MemoryStore) GetProfile(_ context.Context, userID int64) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.profiles[userID]
	if !ok {
		return nil, common.ErrProfileNotFound
	}
	return &p, nil
}

func (m *MemoryStore) UpdateTier(_ context.Context, userID int64, from, to tiers.Tier) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[StepUpdateTier]; err != nil {
		return nil, err
	}
	p, ok := m.state.profiles[userID]
	if !ok {
		return nil, common.ErrProfileNotFound
	}
	if p.CurrentTier != from {
		return nil, ErrTierChanged
	}
	p.CurrentTier = to
	p.UpdatedAt = m.now()
	m.state.profiles[userID] = p
	return &p, nil
}

func (m *MemoryStore) FindCheckIn(_ context.Context, userID, eventID int64) (*CheckIn, *Stamp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.checkins[pairKey{userID, eventID}]
	if !ok {
		return nil, nil, ErrCheckInNotFound
	}
	for _, s := range m.state.stamps {
		if s.UserID == userID && s.EventID == eventID {
			return &c, &s, nil
		}
	}
	return nil, nil, ErrCheckInNotFound
}

func (m *MemoryStore) ListStamps(_ context.Context, userID int64) ([]*Stamp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Stamp
	for _, s := range m.state.stamps {
		if s.UserID == userID {
			out = append(out, &s)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListRecentlyStamped(_ context.Context, since time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, s := range m.state.stamps {
		if !s.EarnedAt.Before(since) && !seen[s.UserID] {
			seen[s.UserID] = true
			ids = append(ids, s.UserID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Ledger возвращает журнал баллов пользователя.
func (m *MemoryStore) Ledger(userID int64) []CreditTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CreditTransaction
	for _, t := range m.state.ledger {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// CheckInCount возвращает количество отметок пользователя.
func (m *MemoryStore) CheckInCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.state.checkins {
		if k.userID == userID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// memTx работает с состоянием под уже взятым мьютексом.
type memTx struct {
	m *MemoryStore
}

func (t *memTx) fail(step string) error {
	return t.m.failures[step]
}

func (t *memTx) LockProfile(_ context.Context, userID int64) (*Profile, error) {
	if err := t.fail(StepLockProfile); err != nil {
		return nil, err
	}
	p, ok := t.m.state.profiles[userID]
	if !ok {
		return nil, common.ErrProfileNotFound
	}
	return &p, nil
}

func (t *memTx) FindCheckIn(_ context.Context, userID, eventID int64) (*CheckIn, error) {
	c, ok := t.m.state.checkins[pairKey{userID, eventID}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *memTx) InsertCheckIn(_ context.Context, c *CheckIn) error {
	if err := t.fail(StepInsertCheckIn); err != nil {
		return err
	}
	key := pairKey{c.UserID, c.EventID}
	if _, ok := t.m.state.checkins[key]; ok {
		return ErrAlreadyCheckedIn
	}
	c.ID = t.m.nextID()
	c.CreatedAt = t.m.now()
	t.m.state.checkins[key] = *c
	return nil
}

func (t *memTx) InsertStamp(_ context.Context, s *Stamp) error {
	if err := t.fail(StepInsertStamp); err != nil {
		return err
	}
	s.ID = t.m.nextID()
	s.EarnedAt = t.m.now()
	t.m.state.stamps = append(t.m.state.stamps, *s)
	return nil
}

func (t *memTx) InsertCreditTransaction(_ context.Context, ct *CreditTransaction) error {
	if err := t.fail(StepInsertTransaction); err != nil {
		return err
	}
	ct.ID = t.m.nextID()
	ct.CreatedAt = t.m.now()
	t.m.state.ledger = append(t.m.state.ledger, *ct)
	return nil
}

func (t *memTx) RecomputeAggregates(_ context.Context, userID int64) (Aggregates, error) {
	if err := t.fail(StepRecompute); err != nil {
		return Aggregates{}, err
	}
	var agg Aggregates
	countries := make(map[string]struct{})
	for _, s := range t.m.state.stamps {
		if s.UserID != userID {
			continue
		}
		agg.TotalEvents++
		if s.CountryCode != "" {
			countries[s.CountryCode] = struct{}{}
		}
	}
	agg.TotalCountries = len(countries)
	return agg, nil
}

func (t *memTx) ApplyAward(_ context.Context, userID int64, credits int64, agg Aggregates) (*Profile, error) {
	if err := t.fail(StepApplyAward); err != nil {
		return nil, err
	}
	p, ok := t.m.state.profiles[userID]
	if !ok {
		return nil, common.ErrProfileNotFound
	}
	p.TotalPoints += credits
	p.TotalEvents = agg.TotalEvents
	p.TotalCountries = agg.TotalCountries
	p.UpdatedAt = t.m.now()
	t.m.state.profiles[userID] = p
	return &p, nil
}
