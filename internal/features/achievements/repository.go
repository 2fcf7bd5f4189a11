// Package achievements — repository.go работает с таблицей achievement_unlocks.
package achievements

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository — Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий достижений.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListByUser возвращает достижения пользователя в порядке получения.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Unlock, error) {
	query := `
		SELECT id, user_id, achievement_code, unlocked_at
		FROM achievement_unlocks
		WHERE user_id = $1
		ORDER BY unlocked_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения достижений: %w", err)
	}
	defer rows.Close()

	var out []Unlock
	for rows.Next() {
		var u Unlock
		var code string
		if err := rows.Scan(&u.ID, &u.UserID, &code, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования достижения: %w", err)
		}
		u.Code = Code(code)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Insert записывает достижение. UNIQUE (user_id, achievement_code)
// превращает гонку двух проверок в ON CONFLICT DO NOTHING.
func (r *Repository) Insert(ctx context.Context, u *Unlock) (bool, error) {
	query := `
		INSERT INTO achievement_unlocks (user_id, achievement_code)
		VALUES ($1, $2)
		ON CONFLICT (user_id, achievement_code) DO NOTHING
		RETURNING id, unlocked_at
	`
	err := r.db.QueryRow(ctx, query, u.UserID, string(u.Code)).Scan(&u.ID, &u.UnlockedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка записи достижения: %w", err)
	}
	return true, nil
}
