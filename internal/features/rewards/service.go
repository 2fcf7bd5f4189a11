// Package rewards — service.go содержит жизненный цикл наград:
// список, погашение и истечение срока.
package rewards

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/passport/internal/common"
)

// Service управляет наградами пользователя.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService создаёт новый сервис наград.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetClock подменяет часы (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ListForUser возвращает награды пользователя. Просроченные, но ещё
// не помеченные планировщиком, отдаются со статусом EXPIRED.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]*Reward, error) {
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, r := range list {
		r.Status = r.EffectiveStatus(now)
	}
	return list, nil
}

// Redeem гасит награду пользователя.
// Чужая или несуществующая — ErrRewardNotFound, погашенная или просроченная — ErrRewardNotAvailable.
func (s *Service) Redeem(ctx context.Context, userID, rewardID int64) (*Reward, error) {
	r, err := s.store.Get(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, common.ErrRewardNotFound
	}
	now := s.now()
	if r.EffectiveStatus(now) != StatusAvailable {
		return nil, common.ErrRewardNotAvailable
	}

	redeemed, err := s.store.MarkRedeemed(ctx, userID, rewardID, now)
	if err != nil {
		if !errors.Is(err, common.ErrRewardNotAvailable) {
			log.WithError(err).WithField("reward_id", rewardID).Error("Ошибка погашения награды")
		}
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"reward_id": rewardID,
		"code":      redeemed.Code,
	}).Info("Награда погашена")
	return redeemed, nil
}

// ExpireOverdue помечает просроченные награды. Вызывается планировщиком.
//
// Возвращает:
//   - int64: сколько наград помечено EXPIRED
//   - error: ошибка хранилища
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireBefore(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithField("count", n).Info("Награды с истёкшим сроком помечены")
	}
	return n, nil
}
