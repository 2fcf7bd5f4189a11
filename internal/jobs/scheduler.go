// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежечасное истечение наград
// и ночной повторный проход Reconciler по недавно отмеченным участникам.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/passport/internal/features/rewards"
)

// Расписание задач.
const (
	ExpireSpec    = "0 * * * *"  // Каждый час
	ReconcileSpec = "30 3 * * *" // Каждую ночь в 03:30
)

// sweepWindow — за какой период берём участников для повторного прохода.
const sweepWindow = 24 * time.Hour

// Expirer помечает просроченные награды (rewards.Service).
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// RecentUsers возвращает участников со штампами начиная с since (passport.Store).
type RecentUsers interface {
	ListRecentlyStamped(ctx context.Context, since time.Time) ([]int64, error)
}

// Reconciler — шаги после начисления (rewards.Reconciler).
type Reconciler interface {
	Reconcile(ctx context.Context, in rewards.ReconcileInput) *rewards.ReconcileResult
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	expirer    Expirer
	recent     RecentUsers
	reconciler Reconciler
	now        func() time.Time
}

// NewScheduler создаёт планировщик задач в часовом поясе loc.
func NewScheduler(loc *time.Location, expirer Expirer, recent RecentUsers, reconciler Reconciler) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		expirer:    expirer,
		recent:     recent,
		reconciler: reconciler,
		now:        time.Now,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(ExpireSpec, func() { s.ExpireRewards(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(ReconcileSpec, func() { s.ReconcileRecent(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	log.Infof("Планировщик задач запущен (%s)", s.cron.Location())
	return nil
}

// ExpireRewards помечает просроченные награды.
func (s *Scheduler) ExpireRewards(ctx context.Context) {
	log.Debug("[CRON] Истечение наград")
	if _, err := s.expirer.ExpireOverdue(ctx); err != nil {
		log.WithError(err).Error("[CRON] Ошибка истечения наград")
	}
}

// ReconcileRecent повторяет шаги после начисления для всех, кто отметился
// за последние сутки: чинит уровни и награды, потерянные из-за сбоев.
// Повторный проход ничего не дублирует.
func (s *Scheduler) ReconcileRecent(ctx context.Context) int {
	log.Info("[CRON] Повторный проход по недавним отметкам")
	ids, err := s.recent.ListRecentlyStamped(ctx, s.now().Add(-sweepWindow))
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка получения недавних отметок")
		return 0
	}

	repaired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res := s.reconciler.Reconcile(ctx, rewards.ReconcileInput{UserID: id})
		if res.TierUpdated || len(res.Rewards) > 0 || len(res.Achievements) > 0 {
			repaired++
		}
	}
	log.WithFields(log.Fields{
		"users":    len(ids),
		"repaired": repaired,
	}).Info("[CRON] Повторный проход завершён")
	return repaired
}

// Stop останавливает планировщик.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
