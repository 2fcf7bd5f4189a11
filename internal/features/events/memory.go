package events

import (
	"context"
	"sync"

	"serotonyl.ru/passport/internal/common"
)

// MemoryCatalog — каталог в памяти. Используется в тестах и для локального прогона.
type MemoryCatalog struct {
	mu     sync.RWMutex
	byCode map[string]Event
}

// NewMemoryCatalog создаёт каталог из списка мероприятий.
func NewMemoryCatalog(list ...Event) *MemoryCatalog {
	c := &MemoryCatalog{byCode: make(map[string]Event, len(list))}
	for _, e := range list {
		c.Put(e)
	}
	return c
}

// Put добавляет или заменяет мероприятие.
func (c *MemoryCatalog) Put(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.AccessCode = NormalizeAccessCode(e.AccessCode)
	c.byCode[e.AccessCode] = e
}

// GetByAccessCode ведёт себя так же, как Repository.GetByAccessCode.
func (c *MemoryCatalog) GetByAccessCode(_ context.Context, code string) (*Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byCode[NormalizeAccessCode(code)]
	if !ok {
		return nil, common.ErrEventNotFound
	}
	return &e, nil
}
