package rewards

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"serotonyl.ru/passport/internal/features/tiers"
)

// Milestones — пороги количества мероприятий, за которые выдаётся награда.
var Milestones = []int{10, 25, 50, 100}

// MilestoneCode — код награды за веху: MILE10, MILE25, ...
func MilestoneCode(events int) string {
	return fmt.Sprintf("MILE%d", events)
}

// WelcomeCode — код приветственной награды уровня: WELCOME_SILVER, ...
func WelcomeCode(tier tiers.Tier) string {
	return "WELCOME_" + string(tier)
}

// newDiscountCode генерирует промокод вида PSP-1A2B3C4D5E6F.
func newDiscountCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PSP-" + strings.ToUpper(id[:12])
}

func milestoneReward(userID int64, events int) *Reward {
	return &Reward{
		UserID: userID,
		Type:   CategoryMilestone,
		Code:   MilestoneCode(events),
		Metadata: Metadata{
			Category:     CategoryMilestone,
			DiscountCode: newDiscountCode(),
			Description:  fmt.Sprintf("Награда за %d посещённых мероприятий", events),
			Milestone:    &MilestoneDetails{Events: events},
		},
		Status: StatusAvailable,
	}
}

func welcomeReward(userID int64, from, to tiers.Tier) *Reward {
	return &Reward{
		UserID: userID,
		Type:   CategoryTierUpgrade,
		Code:   WelcomeCode(to),
		Metadata: Metadata{
			Category:     CategoryTierUpgrade,
			DiscountCode: newDiscountCode(),
			Description:  fmt.Sprintf("Добро пожаловать на уровень %s", to),
			TierUpgrade:  &TierUpgradeDetails{FromTier: from, ToTier: to},
		},
		Status: StatusAvailable,
	}
}
