package achievements

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/passport/internal/features/passport"
)

// ProgressSource — откуда берутся профиль и штампы. passport.Store подходит.
type ProgressSource interface {
	GetProfile(ctx context.Context, userID int64) (*passport.Profile, error)
	ListStamps(ctx context.Context, userID int64) ([]*passport.Stamp, error)
}

// Store — хранилище полученных достижений.
type Store interface {
	ListByUser(ctx context.Context, userID int64) ([]Unlock, error)
	// Insert возвращает false, если достижение уже было получено.
	Insert(ctx context.Context, u *Unlock) (bool, error)
}

// Engine проверяет правила и записывает новые достижения.
type Engine struct {
	source ProgressSource
	store  Store
	rules  []Rule
}

// NewEngine создаёт движок со встроенными правилами.
func NewEngine(source ProgressSource, store Store) *Engine {
	return &Engine{source: source, store: store, rules: DefaultRules()}
}

// Evaluate проверяет все правила и возвращает только новые достижения.
// Повторный вызов ничего не дублирует.
func (e *Engine) Evaluate(ctx context.Context, userID int64) ([]Unlock, error) {
	profile, err := e.source.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения профиля: %w", err)
	}
	stamps, err := e.source.ListStamps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения штампов: %w", err)
	}
	existing, err := e.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения достижений: %w", err)
	}

	have := make(map[Code]bool, len(existing))
	for _, u := range existing {
		have[u.Code] = true
	}

	progress := Progress{Profile: profile, Stamps: stamps}
	var unlocked []Unlock
	for _, rule := range e.rules {
		if have[rule.Code] || !rule.Check(progress) {
			continue
		}
		u := &Unlock{UserID: userID, Code: rule.Code, Title: rule.Title}
		inserted, err := e.store.Insert(ctx, u)
		if err != nil {
			return unlocked, fmt.Errorf("ошибка записи достижения %s: %w", rule.Code, err)
		}
		if !inserted {
			continue
		}
		log.WithFields(log.Fields{
			"user_id": userID,
			"code":    rule.Code,
		}).Info("Достижение получено")
		unlocked = append(unlocked, *u)
	}
	return unlocked, nil
}
