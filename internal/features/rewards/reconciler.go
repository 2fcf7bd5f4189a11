// Package rewards — reconciler.go выполняет шаги после начисления:
// уровень, достижения, награды за вехи и уровни, уведомления.
//
// Начисление к этому моменту уже зафиксировано. Каждый шаг может упасть
// отдельно: ошибка логируется, остальные шаги продолжаются, начисление
// не откатывается. Повторный запуск ничего не дублирует.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/passport/internal/common"
	"serotonyl.ru/passport/internal/features/achievements"
	"serotonyl.ru/passport/internal/features/passport"
	"serotonyl.ru/passport/internal/features/tiers"
)

// DefaultTTL — срок жизни награды по умолчанию (90 дней).
const DefaultTTL = 90 * 24 * time.Hour

// maxTierAttempts — сколько раз повторяем условную запись уровня,
// если его успела поменять параллельная отметка.
const maxTierAttempts = 3

// ProfileStore — операции с профилем, нужные после начисления.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID int64) (*passport.Profile, error)
	UpdateTier(ctx context.Context, userID int64, from, to tiers.Tier) (*passport.Profile, error)
}

// AchievementEvaluator проверяет достижения и возвращает только новые.
type AchievementEvaluator interface {
	Evaluate(ctx context.Context, userID int64) ([]achievements.Unlock, error)
}

// Notifier отправляет пользователю короткое сообщение.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// ReconcileInput — данные зафиксированного начисления.
// Profile — снимок из транзакции; nil означает «прочитать из хранилища».
type ReconcileInput struct {
	UserID       int64
	PreviousTier tiers.Tier
	Profile      *passport.Profile
}

// ReconcileResult — итог. Errors — шаги, которые не удались.
type ReconcileResult struct {
	Profile      *passport.Profile
	TierUpdated  bool
	PreviousTier tiers.Tier
	NewTier      tiers.Tier
	Rewards      []*Reward
	Achievements []achievements.Unlock
	Errors       []error
}

// Reconciler выполняет шаги после начисления.
type Reconciler struct {
	profiles     ProfileStore
	store        Store
	achievements AchievementEvaluator
	notifier     Notifier
	table        tiers.Table
	ttl          time.Duration
	now          func() time.Time
}

// NewReconciler создаёт Reconciler. notifier может быть nil.
func NewReconciler(profiles ProfileStore, store Store, evaluator AchievementEvaluator, notifier Notifier, table tiers.Table, ttl time.Duration) *Reconciler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Reconciler{
		profiles:     profiles,
		store:        store,
		achievements: evaluator,
		notifier:     notifier,
		table:        table,
		ttl:          ttl,
		now:          time.Now,
	}
}

// SetClock подменяет часы (для тестов).
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Reconcile выполняет все шаги. Результат возвращается всегда.
//
// Параметры:
//   - ctx: контекст
//   - in: снимок зафиксированного начисления; без Profile профиль читается
//     из хранилища (ночной повторный проход)
//
// Возвращает:
//   - *ReconcileResult: новый уровень, выданные награды и достижения;
//     в Errors — шаги, которые не удались (начисление они не отменяют)
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput) *ReconcileResult {
	logger := log.WithField("user_id", in.UserID)
	res := &ReconcileResult{PreviousTier: in.PreviousTier}

	fail := func(step string, err error) {
		logger.WithError(err).Warnf("Шаг %s не выполнен", step)
		res.Errors = append(res.Errors, fmt.Errorf("%s: %w", step, err))
	}

	// 1. Профиль: снимок из транзакции, иначе чтение
	profile := in.Profile
	if profile == nil {
		p, err := r.profiles.GetProfile(ctx, in.UserID)
		if err != nil {
			fail("profile", err)
			return res
		}
		profile = p
	}
	if res.PreviousTier == "" {
		res.PreviousTier = profile.CurrentTier
	}

	// 2-3. Уровень: условная запись «только если в хранилище всё ещё старый».
	// Параллельная отметка могла поднять уровень раньше; тогда перечитываем
	// профиль и проверяем заново, чтобы не записать более низкий уровень.
	wrote := false
	for attempt := 0; attempt < maxTierAttempts; attempt++ {
		up := r.table.CheckUpgrade(profile.CurrentTier, profile.TotalPoints)
		if !up.Upgraded {
			break
		}
		updated, err := r.profiles.UpdateTier(ctx, in.UserID, up.OldTier, up.NewTier)
		if errors.Is(err, passport.ErrTierChanged) {
			fresh, gerr := r.profiles.GetProfile(ctx, in.UserID)
			if gerr != nil {
				fail("tier", gerr)
				break
			}
			profile = fresh
			continue
		}
		if err != nil {
			fail("tier", err)
			break
		}
		profile = updated
		wrote = true
		break
	}
	res.TierUpdated = wrote
	res.NewTier = profile.CurrentTier
	res.Profile = profile

	// 4. Достижения
	if r.achievements != nil {
		unlocked, err := r.achievements.Evaluate(ctx, in.UserID)
		if err != nil {
			fail("achievements", err)
		}
		res.Achievements = unlocked
	}

	// 5-6. Награды: проверка перед вставкой плюс уникальный индекс
	existing, err := r.store.ListByUser(ctx, in.UserID)
	if err != nil {
		fail("rewards", err)
	} else {
		have := make(map[string]bool, len(existing))
		for _, rw := range existing {
			have[string(rw.Type)+"/"+rw.Code] = true
		}

		var candidates []*Reward
		for _, m := range Milestones {
			if profile.TotalEvents >= m {
				candidates = append(candidates, milestoneReward(in.UserID, m))
			}
		}
		if r.table.Rank(profile.CurrentTier) > 0 {
			candidates = append(candidates, welcomeReward(in.UserID, res.PreviousTier, profile.CurrentTier))
		}

		for _, rw := range candidates {
			if have[string(rw.Type)+"/"+rw.Code] {
				continue
			}
			rw.ExpiresAt = r.now().Add(r.ttl)
			inserted, err := r.store.Insert(ctx, rw)
			if err != nil {
				fail("reward "+rw.Code, err)
				continue
			}
			if inserted {
				logger.WithField("code", rw.Code).Info("Награда выдана")
				res.Rewards = append(res.Rewards, rw)
			}
		}
	}

	r.notify(ctx, in.UserID, res)
	return res
}

// notify сообщает пользователю о новом уровне, наградах и достижениях.
// Ошибка доставки только логируется.
func (r *Reconciler) notify(ctx context.Context, userID int64, res *ReconcileResult) {
	if r.notifier == nil {
		return
	}
	var lines []string
	if res.TierUpdated {
		lines = append(lines, fmt.Sprintf("🎉 Новый уровень паспорта: %s", res.NewTier))
	}
	for _, a := range res.Achievements {
		title := a.Title
		if title == "" {
			title = string(a.Code)
		}
		lines = append(lines, "🏅 Достижение: "+title)
	}
	for _, rw := range res.Rewards {
		lines = append(lines, fmt.Sprintf("🎁 %s, промокод %s", rw.Metadata.Description, rw.Metadata.DiscountCode))
	}
	if len(lines) == 0 {
		return
	}
	if res.Profile != nil {
		lines = append(lines, "Баланс: "+common.FormatPoints(res.Profile.TotalPoints))
	}
	if err := r.notifier.Notify(ctx, userID, strings.Join(lines, "\n")); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось отправить уведомление")
	}
}
