// Package credits считает, сколько баллов даёт отметка на мероприятии.
//
// Приоритет:
//  1. Индивидуальная стоимость мероприятия (если задана и > 0)
//  2. Премиальный бонус (если мероприятие премиальное)
//  3. Стандартная стоимость
//
// Функция чистая: вызывается внутри транзакции начисления и не должна
// ни ходить в сеть, ни падать.
package credits

import "serotonyl.ru/passport/internal/features/events"

// Стоимости по умолчанию, если конфиг их не переопределил.
const (
	DefaultCredits = 100
	PremiumCredits = 250
)

// Policy — настройки начисления.
type Policy struct {
	Default int64
	Premium int64
}

// NewPolicy создаёт политику; нулевые значения заменяются дефолтами.
func NewPolicy(def, premium int64) Policy {
	if def <= 0 {
		def = DefaultCredits
	}
	if premium <= 0 {
		premium = PremiumCredits
	}
	return Policy{Default: def, Premium: premium}
}

// Compute возвращает количество баллов за отметку на мероприятии.
func (p Policy) Compute(e events.Event) int64 {
	if e.CreditsOverride > 0 {
		return e.CreditsOverride
	}
	if e.IsPremium {
		return p.Premium
	}
	return p.Default
}
