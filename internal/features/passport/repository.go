// Package passport — repository.go выполняет операции с таблицами
// passport_profiles, checkins, stamps и credit_transactions.
// Начисление за отметку выполняется в одной транзакции БД.
package passport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/passport/internal/common"
	"serotonyl.ru/passport/internal/features/tiers"
)

// pgUniqueViolation — код ошибки PostgreSQL при нарушении UNIQUE.
const pgUniqueViolation = "23505"

const profileColumns = `user_id, handle, total_points, current_tier, total_events, total_countries, created_at, updated_at`

// Repository — Store поверх PostgreSQL.
type Repository struct {
	db          *pgxpool.Pool
	initialTier tiers.Tier // Уровень нового профиля
}

// NewRepository создаёт новый репозиторий паспортов.
func NewRepository(db *pgxpool.Pool, initialTier tiers.Tier) *Repository {
	return &Repository{db: db, initialTier: initialTier}
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var tier string
	err := row.Scan(
		&p.UserID, &p.Handle, &p.TotalPoints, &tier,
		&p.TotalEvents, &p.TotalCountries, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CurrentTier = tiers.Tier(tier)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// EnsureProfile создаёт профиль, если его нет.
// Если handle уже занят другим пользователем — к нему дописывается user_id.
func (r *Repository) EnsureProfile(ctx context.Context, userID int64, handle string) (*Profile, error) {
	if handle == "" {
		handle = DefaultHandle(userID)
	}

	query := `
		INSERT INTO passport_profiles (user_id, handle, current_tier)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	for _, h := range []string{handle, fmt.Sprintf("%s-%d", handle, userID)} {
		if _, err := r.db.Exec(ctx, query, userID, h, string(r.initialTier)); err != nil {
			return nil, fmt.Errorf("ошибка создания профиля: %w", err)
		}
		p, err := r.GetProfile(ctx, userID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, common.ErrProfileNotFound) {
			return nil, err
		}
		// Конфликт по handle, а не по user_id — пробуем запасное имя
	}
	return nil, fmt.Errorf("не удалось подобрать handle для user_id=%d", userID)
}

// GetProfile возвращает профиль пользователя.
func (r *Repository) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM passport_profiles WHERE user_id = $1`
	p, err := scanProfile(r.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения профиля (user_id=%d): %w", userID, err)
	}
	return p, nil
}

// UpdateTier записывает новый уровень. Отдельная запись вне транзакции начисления.
// Запись условная (compare-and-set по current_tier): если параллельная отметка
// уже сменила уровень, строка не обновляется и возвращается ErrTierChanged.
func (r *Repository) UpdateTier(ctx context.Context, userID int64, from, to tiers.Tier) (*Profile, error) {
	query := `
		UPDATE passport_profiles
		SET current_tier = $3, updated_at = NOW()
		WHERE user_id = $1 AND current_tier = $2
		RETURNING ` + profileColumns
	p, err := scanProfile(r.db.QueryRow(ctx, query, userID, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.GetProfile(ctx, userID); gerr != nil {
			return nil, gerr
		}
		return nil, ErrTierChanged
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления уровня: %w", err)
	}
	return p, nil
}

// FindCheckIn возвращает отметку и её штамп.
func (r *Repository) FindCheckIn(ctx context.Context, userID, eventID int64) (*CheckIn, *Stamp, error) {
	query := `
		SELECT c.id, c.user_id, c.event_id, c.credits_earned, c.is_premium, c.checkin_method, c.created_at,
		       s.id, s.country_code, COALESCE(s.carnival_circuit, ''), s.points_earned, s.source, s.earned_at
		FROM checkins c
		JOIN stamps s ON s.user_id = c.user_id AND s.event_id = c.event_id
		WHERE c.user_id = $1 AND c.event_id = $2
	`
	var c CheckIn
	var s Stamp
	var method string
	err := r.db.QueryRow(ctx, query, userID, eventID).Scan(
		&c.ID, &c.UserID, &c.EventID, &c.CreditsEarned, &c.IsPremium, &method, &c.CreatedAt,
		&s.ID, &s.CountryCode, &s.CarnivalCircuit, &s.PointsEarned, &s.Source, &s.EarnedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrCheckInNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка получения отметки: %w", err)
	}
	c.Method = CheckinMethod(method)
	s.UserID, s.EventID = c.UserID, c.EventID
	return &c, &s, nil
}

// ListStamps возвращает все штампы пользователя, старые первыми.
func (r *Repository) ListStamps(ctx context.Context, userID int64) ([]*Stamp, error) {
	query := `
		SELECT id, user_id, event_id, country_code, COALESCE(carnival_circuit, ''),
		       points_earned, source, earned_at
		FROM stamps
		WHERE user_id = $1
		ORDER BY earned_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения штампов: %w", err)
	}
	defer rows.Close()

	var stamps []*Stamp
	for rows.Next() {
		var s Stamp
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.EventID, &s.CountryCode, &s.CarnivalCircuit,
			&s.PointsEarned, &s.Source, &s.EarnedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования штампа: %w", err)
		}
		stamps = append(stamps, &s)
	}
	return stamps, rows.Err()
}

// ListRecentlyStamped возвращает пользователей со штампами начиная с since.
func (r *Repository) ListRecentlyStamped(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT user_id FROM stamps WHERE earned_at >= $1 ORDER BY user_id`, since)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения недавних штампов: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RunInTx начинает транзакцию БД, выполняет fn и фиксирует.
// Любая ошибка fn откатывает всё, что было сделано внутри.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyCheckedIn
		}
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// pgTx — операции начисления внутри одной транзакции pgx.
type pgTx struct {
	tx pgx.Tx
}

// LockProfile берёт блокировку строки профиля (FOR UPDATE).
// Параллельные начисления одному пользователю за разные мероприятия
// выстраиваются в очередь, и пересчёт статистики видит штампы друг друга.
func (t *pgTx) LockProfile(ctx context.Context, userID int64) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM passport_profiles WHERE user_id = $1 FOR UPDATE`
	p, err := scanProfile(t.tx.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки профиля: %w", err)
	}
	return p, nil
}

func (t *pgTx) FindCheckIn(ctx context.Context, userID, eventID int64) (*CheckIn, error) {
	query := `
		SELECT id, user_id, event_id, credits_earned, is_premium, checkin_method, created_at
		FROM checkins
		WHERE user_id = $1 AND event_id = $2
	`
	var c CheckIn
	var method string
	err := t.tx.QueryRow(ctx, query, userID, eventID).Scan(
		&c.ID, &c.UserID, &c.EventID, &c.CreditsEarned, &c.IsPremium, &method, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки отметки: %w", err)
	}
	c.Method = CheckinMethod(method)
	return &c, nil
}

// InsertCheckIn — единственные ворота идемпотентности: UNIQUE (user_id, event_id).
func (t *pgTx) InsertCheckIn(ctx context.Context, c *CheckIn) error {
	query := `
		INSERT INTO checkins (user_id, event_id, credits_earned, is_premium, checkin_method)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := t.tx.QueryRow(ctx, query, c.UserID, c.EventID, c.CreditsEarned, c.IsPremium, string(c.Method)).
		Scan(&c.ID, &c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyCheckedIn
	}
	if err != nil {
		return fmt.Errorf("ошибка записи отметки: %w", err)
	}
	return nil
}

func (t *pgTx) InsertStamp(ctx context.Context, s *Stamp) error {
	query := `
		INSERT INTO stamps (user_id, event_id, country_code, carnival_circuit, points_earned, source)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id, earned_at
	`
	err := t.tx.QueryRow(ctx, query,
		s.UserID, s.EventID, s.CountryCode, s.CarnivalCircuit, s.PointsEarned, s.Source,
	).Scan(&s.ID, &s.EarnedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyCheckedIn
	}
	if err != nil {
		return fmt.Errorf("ошибка записи штампа: %w", err)
	}
	return nil
}

func (t *pgTx) InsertCreditTransaction(ctx context.Context, ct *CreditTransaction) error {
	query := `
		INSERT INTO credit_transactions (user_id, tx_type, reason, amount, related_entity_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := t.tx.QueryRow(ctx, query,
		ct.UserID, string(ct.Type), ct.Reason, ct.Amount, ct.RelatedEntityID,
	).Scan(&ct.ID, &ct.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи транзакции баллов: %w", err)
	}
	return nil
}

// RecomputeAggregates считает статистику заново по строкам stamps,
// а не прибавляет к закешированному счётчику.
func (t *pgTx) RecomputeAggregates(ctx context.Context, userID int64) (Aggregates, error) {
	query := `
		SELECT COUNT(*), COUNT(DISTINCT NULLIF(country_code, ''))
		FROM stamps
		WHERE user_id = $1
	`
	var agg Aggregates
	if err := t.tx.QueryRow(ctx, query, userID).Scan(&agg.TotalEvents, &agg.TotalCountries); err != nil {
		return Aggregates{}, fmt.Errorf("ошибка пересчёта статистики: %w", err)
	}
	return agg, nil
}

func (t *pgTx) ApplyAward(ctx context.Context, userID int64, credits int64, agg Aggregates) (*Profile, error) {
	query := `
		UPDATE passport_profiles
		SET total_points = total_points + $2,
		    total_events = $3,
		    total_countries = $4,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + profileColumns
	p, err := scanProfile(t.tx.QueryRow(ctx, query, userID, credits, agg.TotalEvents, agg.TotalCountries))
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления профиля: %w", err)
	}
	return p, nil
}
