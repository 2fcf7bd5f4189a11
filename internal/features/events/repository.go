// Package events — repository.go читает таблицу events.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/passport/internal/common"
)

// Repository предоставляет методы для работы с таблицей events.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий мероприятий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByAccessCode возвращает мероприятие по коду доступа.
// Если мероприятия нет — common.ErrEventNotFound.
func (r *Repository) GetByAccessCode(ctx context.Context, code string) (*Event, error) {
	query := `
		SELECT id, title, event_date, location, access_code, checkin_enabled,
		       credits_override, is_premium, country_code, COALESCE(carnival_circuit, '')
		FROM events
		WHERE access_code = $1
	`
	var e Event
	err := r.db.QueryRow(ctx, query, NormalizeAccessCode(code)).Scan(
		&e.ID, &e.Title, &e.Date, &e.Location, &e.AccessCode, &e.CheckinEnabled,
		&e.CreditsOverride, &e.IsPremium, &e.CountryCode, &e.CarnivalCircuit,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения мероприятия: %w", err)
	}
	return &e, nil
}
