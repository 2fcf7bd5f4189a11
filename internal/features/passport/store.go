package passport

import (
	"context"
	"time"

	"serotonyl.ru/passport/internal/features/tiers"
)

// Store — хранилище паспортов. Реализации: Repository (PostgreSQL) и MemoryStore.
type Store interface {
	// EnsureProfile создаёт профиль, если его ещё нет, и возвращает актуальный.
	EnsureProfile(ctx context.Context, userID int64, handle string) (*Profile, error)
	GetProfile(ctx context.Context, userID int64) (*Profile, error)
	// UpdateTier записывает уровень to, только если в хранилище всё ещё from,
	// и возвращает профиль после записи. Иначе — ErrTierChanged.
	UpdateTier(ctx context.Context, userID int64, from, to tiers.Tier) (*Profile, error)
	// FindCheckIn возвращает отметку и её штамп или ErrCheckInNotFound.
	FindCheckIn(ctx context.Context, userID, eventID int64) (*CheckIn, *Stamp, error)
	ListStamps(ctx context.Context, userID int64) ([]*Stamp, error)
	// ListRecentlyStamped возвращает пользователей, получивших штамп начиная с since.
	ListRecentlyStamped(ctx context.Context, since time.Time) ([]int64, error)
	// RunInTx выполняет fn атомарно: либо все шаги видны, либо ни одного.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx — операции, доступные внутри транзакции начисления.
type Tx interface {
	// LockProfile блокирует строку профиля до конца транзакции.
	LockProfile(ctx context.Context, userID int64) (*Profile, error)
	// FindCheckIn возвращает nil без ошибки, если отметки нет.
	FindCheckIn(ctx context.Context, userID, eventID int64) (*CheckIn, error)
	// InsertCheckIn возвращает ErrAlreadyCheckedIn при нарушении уникальности.
	InsertCheckIn(ctx context.Context, c *CheckIn) error
	InsertStamp(ctx context.Context, s *Stamp) error
	InsertCreditTransaction(ctx context.Context, t *CreditTransaction) error
	// RecomputeAggregates считает статистику по штампам, видимым в транзакции.
	RecomputeAggregates(ctx context.Context, userID int64) (Aggregates, error)
	// ApplyAward прибавляет баллы, записывает статистику и возвращает профиль после записи.
	ApplyAward(ctx context.Context, userID int64, credits int64, agg Aggregates) (*Profile, error)
}
