// Package rewards выдаёт награды за уровни и вехи и ведёт их жизненный цикл.
// models.go описывает награду и её метаданные.
package rewards

import (
	"encoding/json"
	"fmt"
	"time"

	"serotonyl.ru/passport/internal/features/tiers"
)

// Category — вид награды. Совпадает с колонкой reward_type.
type Category string

const (
	CategoryTierUpgrade Category = "TIER_UPGRADE"
	CategoryMilestone   Category = "MILESTONE"
)

// Status — состояние награды.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusRedeemed  Status = "REDEEMED"
	StatusExpired   Status = "EXPIRED"
)

// TierUpgradeDetails — данные приветственной награды уровня.
type TierUpgradeDetails struct {
	FromTier tiers.Tier `json:"fromTier,omitempty"`
	ToTier   tiers.Tier `json:"toTier"`
}

// MilestoneDetails — данные награды за веху.
type MilestoneDetails struct {
	Events int `json:"events"`
}

// Metadata — метаданные награды. Заполнена ровно одна ветка,
// соответствующая Category. Attributes — произвольные данные для витрины.
type Metadata struct {
	Category     Category            `json:"category"`
	DiscountCode string              `json:"discountCode"`
	Description  string              `json:"description"`
	TierUpgrade  *TierUpgradeDetails `json:"tierUpgrade,omitempty"`
	Milestone    *MilestoneDetails   `json:"milestone,omitempty"`
	Attributes   map[string]string   `json:"attributes,omitempty"`
}

// Validate проверяет, что заполнена ветка нужной категории.
func (m Metadata) Validate() error {
	switch m.Category {
	case CategoryTierUpgrade:
		if m.TierUpgrade == nil || m.Milestone != nil {
			return fmt.Errorf("метаданные %s: нужна только ветка tierUpgrade", m.Category)
		}
	case CategoryMilestone:
		if m.Milestone == nil || m.TierUpgrade != nil {
			return fmt.Errorf("метаданные %s: нужна только ветка milestone", m.Category)
		}
	default:
		return fmt.Errorf("неизвестная категория награды %q", m.Category)
	}
	return nil
}

func encodeMetadata(m Metadata) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func decodeMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("ошибка разбора метаданных награды: %w", err)
	}
	return m, nil
}

// Reward — награда пользователя. Пара (UserID, Type, Code) уникальна.
type Reward struct {
	ID         int64      `db:"id"`
	UserID     int64      `db:"user_id"`
	Type       Category   `db:"reward_type"`
	Code       string     `db:"code"` // MILE10, WELCOME_SILVER
	Metadata   Metadata   `db:"metadata"`
	Status     Status     `db:"status"`
	ExpiresAt  time.Time  `db:"expires_at"`
	RedeemedAt *time.Time `db:"redeemed_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

// EffectiveStatus учитывает срок: доступная, но просроченная награда — EXPIRED,
// даже если планировщик ещё не успел её пометить.
func (r *Reward) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusAvailable && !now.Before(r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}
