// Package passport — coordinator.go содержит атомарное начисление за отметку.
package passport

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/passport/internal/features/credits"
	"serotonyl.ru/passport/internal/features/events"
	"serotonyl.ru/passport/internal/features/tiers"
)

// AlreadyCheckedInError — повторная отметка. К ошибке приложены
// исходная отметка и штамп, чтобы клиент показал «уже отмечен».
type AlreadyCheckedInError struct {
	CheckIn *CheckIn
	Stamp   *Stamp
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("already checked in: user_id=%d event_id=%d", e.CheckIn.UserID, e.CheckIn.EventID)
}

// Is позволяет проверять ошибку через errors.Is(err, ErrAlreadyCheckedIn).
func (e *AlreadyCheckedInError) Is(target error) bool {
	return target == ErrAlreadyCheckedIn
}

// AwardRequest — что начисляем и кому.
type AwardRequest struct {
	UserID int64
	Handle string // Для ленивого создания профиля
	Event  events.Event
	Method CheckinMethod
}

// AwardOutcome — результат зафиксированной транзакции.
// Profile — состояние профиля сразу после записи, перечитывать не нужно.
type AwardOutcome struct {
	CheckIn      *CheckIn
	Stamp        *Stamp
	Transaction  *CreditTransaction
	Profile      *Profile
	PreviousTier tiers.Tier // Уровень до начисления
	Credits      int64
}

// Coordinator выполняет начисление за отметку одной транзакцией.
type Coordinator struct {
	store  Store
	policy credits.Policy
}

// NewCoordinator создаёт координатор начислений.
func NewCoordinator(store Store, policy credits.Policy) *Coordinator {
	return &Coordinator{store: store, policy: policy}
}

// Award начисляет штамп и баллы за мероприятие.
//
// Шаги внутри одной транзакции:
//  1. Блокировка профиля и проверка существующей отметки
//  2. Запись отметки (UNIQUE (user_id, event_id) — защита от гонки)
//  3. Запись штампа и EARN-транзакции
//  4. Пересчёт статистики по штампам и обновление профиля
//
// Ошибка на любом шаге откатывает всё. Повторная отметка возвращает
// *AlreadyCheckedInError. Ошибки хранилища не повторяются.
//
// Параметры:
//   - ctx: контекст
//   - req: пользователь, мероприятие и способ отметки
//
// Возвращает:
//   - *AwardOutcome: записи начисления и профиль сразу после него
//   - error: *AlreadyCheckedInError при повторе или ошибка транзакции
func (c *Coordinator) Award(ctx context.Context, req AwardRequest) (*AwardOutcome, error) {
	if _, err := c.store.EnsureProfile(ctx, req.UserID, req.Handle); err != nil {
		return nil, fmt.Errorf("ошибка подготовки профиля: %w", err)
	}

	amount := c.policy.Compute(req.Event)
	out := &AwardOutcome{Credits: amount}

	err := c.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		profile, err := tx.LockProfile(ctx, req.UserID)
		if err != nil {
			return err
		}

		existing, err := tx.FindCheckIn(ctx, req.UserID, req.Event.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyCheckedIn
		}

		checkIn := &CheckIn{
			UserID:        req.UserID,
			EventID:       req.Event.ID,
			CreditsEarned: amount,
			IsPremium:     req.Event.IsPremium,
			Method:        req.Method,
		}
		if err := tx.InsertCheckIn(ctx, checkIn); err != nil {
			return err
		}

		stamp := &Stamp{
			UserID:          req.UserID,
			EventID:         req.Event.ID,
			CountryCode:     req.Event.CountryCode,
			CarnivalCircuit: req.Event.CarnivalCircuit,
			PointsEarned:    amount,
			Source:          string(req.Method),
		}
		if err := tx.InsertStamp(ctx, stamp); err != nil {
			return err
		}

		entry := &CreditTransaction{
			UserID:          req.UserID,
			Type:            TxEarn,
			Reason:          ReasonCheckIn,
			Amount:          amount,
			RelatedEntityID: stamp.ID,
		}
		if err := tx.InsertCreditTransaction(ctx, entry); err != nil {
			return err
		}

		agg, err := tx.RecomputeAggregates(ctx, req.UserID)
		if err != nil {
			return err
		}
		updated, err := tx.ApplyAward(ctx, req.UserID, amount, agg)
		if err != nil {
			return err
		}

		out.PreviousTier = profile.CurrentTier
		out.CheckIn = checkIn
		out.Stamp = stamp
		out.Transaction = entry
		out.Profile = updated
		return nil
	})

	if errors.Is(err, ErrAlreadyCheckedIn) {
		return nil, c.alreadyCheckedIn(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка транзакции начисления: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id":  req.UserID,
		"event_id": req.Event.ID,
		"credits":  amount,
		"total":    out.Profile.TotalPoints,
	}).Info("Штамп начислен")

	return out, nil
}

// alreadyCheckedIn собирает ошибку повтора с исходной отметкой.
func (c *Coordinator) alreadyCheckedIn(ctx context.Context, req AwardRequest) error {
	checkIn, stamp, err := c.store.FindCheckIn(ctx, req.UserID, req.Event.ID)
	if err != nil {
		return fmt.Errorf("отметка существует, но не читается: %w", err)
	}
	return &AlreadyCheckedInError{CheckIn: checkIn, Stamp: stamp}
}
