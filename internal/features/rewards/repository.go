// Package rewards — repository.go работает с таблицей rewards.
// Метаданные хранятся в JSONB.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/passport/internal/common"
)

// Store — хранилище наград. Реализации: Repository и MemoryRepository.
type Store interface {
	ListByUser(ctx context.Context, userID int64) ([]*Reward, error)
	// Insert возвращает false, если такая (user_id, reward_type, code) уже есть.
	Insert(ctx context.Context, r *Reward) (bool, error)
	Get(ctx context.Context, id int64) (*Reward, error)
	// MarkRedeemed гасит доступную и не просроченную награду пользователя.
	MarkRedeemed(ctx context.Context, userID, id int64, at time.Time) (*Reward, error)
	// ExpireBefore помечает EXPIRED все доступные награды со сроком до at.
	ExpireBefore(ctx context.Context, at time.Time) (int64, error)
}

const rewardColumns = `id, user_id, reward_type, code, metadata, status, expires_at, redeemed_at, created_at`

// Repository — Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий наград.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanReward(row pgx.Row) (*Reward, error) {
	var r Reward
	var rewardType, status string
	var raw []byte
	if err := row.Scan(
		&r.ID, &r.UserID, &rewardType, &r.Code, &raw, &status,
		&r.ExpiresAt, &r.RedeemedAt, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.Type = Category(rewardType)
	r.Status = Status(status)
	meta, err := decodeMetadata(raw)
	if err != nil {
		return nil, err
	}
	r.Metadata = meta
	return &r, nil
}

// ListByUser возвращает награды пользователя, новые первыми.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения наград: %w", err)
	}
	defer rows.Close()

	var out []*Reward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования награды: %w", err)
		}
		out = append(out, rw)
	}
	return out, rows.Err()
}

// Insert записывает награду. Дубликат по UNIQUE (user_id, reward_type, code)
// не считается ошибкой: ON CONFLICT DO NOTHING, возвращаем false.
func (r *Repository) Insert(ctx context.Context, rw *Reward) (bool, error) {
	meta, err := encodeMetadata(rw.Metadata)
	if err != nil {
		return false, err
	}
	query := `
		INSERT INTO rewards (user_id, reward_type, code, metadata, status, expires_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		ON CONFLICT (user_id, reward_type, code) DO NOTHING
		RETURNING id, created_at
	`
	err = r.db.QueryRow(ctx, query,
		rw.UserID, string(rw.Type), rw.Code, string(meta), string(rw.Status), rw.ExpiresAt,
	).Scan(&rw.ID, &rw.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка записи награды: %w", err)
	}
	return true, nil
}

// Get возвращает награду по ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE id = $1`
	rw, err := scanReward(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrRewardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения награды: %w", err)
	}
	return rw, nil
}

// MarkRedeemed — условный UPDATE: статус и срок проверяются в той же строке,
// поэтому двойное гашение невозможно.
func (r *Repository) MarkRedeemed(ctx context.Context, userID, id int64, at time.Time) (*Reward, error) {
	query := `
		UPDATE rewards
		SET status = 'REDEEMED', redeemed_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'AVAILABLE' AND expires_at > $3
		RETURNING ` + rewardColumns
	rw, err := scanReward(r.db.QueryRow(ctx, query, id, userID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrRewardNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка погашения награды: %w", err)
	}
	return rw, nil
}

// ExpireBefore помечает просроченные награды.
func (r *Repository) ExpireBefore(ctx context.Context, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE rewards SET status = 'EXPIRED'
		WHERE status = 'AVAILABLE' AND expires_at <= $1
	`, at)
	if err != nil {
		return 0, fmt.Errorf("ошибка истечения наград: %w", err)
	}
	return tag.RowsAffected(), nil
}
