// Package passport управляет паспортом участника: профилем, отметками,
// штампами и журналом баллов.
// models.go описывает структуры данных паспорта.
package passport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"serotonyl.ru/passport/internal/common"
	"serotonyl.ru/passport/internal/features/tiers"
)

// ErrAlreadyCheckedIn — пара (пользователь, мероприятие) уже отмечена.
// Это ожидаемый исход, а не авария.
var ErrAlreadyCheckedIn = errors.New("already checked in")

// ErrTierChanged — уровень в хранилище уже не тот, от которого считали повышение.
var ErrTierChanged = errors.New("tier changed concurrently")

// ErrCheckInNotFound — отметки для пары (пользователь, мероприятие) нет.
var ErrCheckInNotFound = errors.New("check-in not found")

// Profile — паспорт участника. Ровно одна запись на пользователя.
// UserID — это Telegram user ID.
type Profile struct {
	UserID         int64      `db:"user_id"`
	Handle         string     `db:"handle"`          // Уникальное отображаемое имя
	TotalPoints    int64      `db:"total_points"`    // Не убывает (кроме ручных правок админом)
	CurrentTier    tiers.Tier `db:"current_tier"`    // BRONZE | SILVER | GOLD | ELITE
	TotalEvents    int        `db:"total_events"`    // Количество штампов
	TotalCountries int        `db:"total_countries"` // Различные страны среди штампов
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// CheckinMethod — способ, которым участник отметился.
type CheckinMethod string

const (
	MethodQRScan           CheckinMethod = "QR_SCAN"
	MethodCodeEntry        CheckinMethod = "CODE_ENTRY"
	MethodGeoCheckin       CheckinMethod = "GEO_CHECKIN"
	MethodManualEntry      CheckinMethod = "MANUAL_ENTRY"
	MethodTicketValidation CheckinMethod = "TICKET_VALIDATION"
)

// ParseMethod разбирает способ отметки. Пустая строка — QR_SCAN.
func ParseMethod(s string) (CheckinMethod, error) {
	m := CheckinMethod(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case "":
		return MethodQRScan, nil
	case MethodQRScan, MethodCodeEntry, MethodGeoCheckin, MethodManualEntry, MethodTicketValidation:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrInvalidMethod, s)
}

// CheckIn — факт отметки. Одна запись на пару (UserID, EventID), не меняется.
type CheckIn struct {
	ID            int64         `db:"id"`
	UserID        int64         `db:"user_id"`
	EventID       int64         `db:"event_id"`
	CreditsEarned int64         `db:"credits_earned"`
	IsPremium     bool          `db:"is_premium"`
	Method        CheckinMethod `db:"checkin_method"`
	CreatedAt     time.Time     `db:"created_at"`
}

// Stamp — штамп в паспорте. 1:1 с CheckIn, только добавляется.
type Stamp struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	EventID         int64     `db:"event_id"`
	CountryCode     string    `db:"country_code"`
	CarnivalCircuit string    `db:"carnival_circuit"` // Пусто, если мероприятие вне круга
	PointsEarned    int64     `db:"points_earned"`
	Source          string    `db:"source"`
	EarnedAt        time.Time `db:"earned_at"`
}

// TxType — направление движения баллов.
type TxType string

const (
	TxEarn   TxType = "EARN"
	TxRedeem TxType = "REDEEM"
	TxAdjust TxType = "ADJUST"
)

// ReasonCheckIn — причина начисления за отметку.
const ReasonCheckIn = "CHECK_IN"

// CreditTransaction — запись журнала баллов. Только добавляется.
// Сумма EARN минус REDEEM по пользователю равна Profile.TotalPoints.
type CreditTransaction struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	Type            TxType    `db:"tx_type"`
	Reason          string    `db:"reason"`
	Amount          int64     `db:"amount"`
	RelatedEntityID int64     `db:"related_entity_id"` // ID штампа
	CreatedAt       time.Time `db:"created_at"`
}

// Aggregates — пересчитанная статистика по штампам пользователя.
type Aggregates struct {
	TotalEvents    int
	TotalCountries int
}

// DefaultHandle — имя для профиля, созданного без явного handle.
func DefaultHandle(userID int64) string {
	return fmt.Sprintf("traveler%d", userID)
}
