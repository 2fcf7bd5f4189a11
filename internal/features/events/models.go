// Package events — каталог мероприятий, на которых можно отметиться.
// models.go описывает конфигурацию мероприятия, нужную для начисления штампа.
package events

import (
	"strings"
	"time"
)

// Event — мероприятие из каталога.
type Event struct {
	ID              int64     `db:"id"`
	Title           string    `db:"title"`
	Date            time.Time `db:"event_date"`
	Location        string    `db:"location"`
	AccessCode      string    `db:"access_code"`      // Код, который организатор показывает на входе
	CheckinEnabled  bool      `db:"checkin_enabled"`  // Можно ли отмечаться
	CreditsOverride int64     `db:"credits_override"` // Индивидуальная стоимость (0 — не задана)
	IsPremium       bool      `db:"is_premium"`       // Премиальное мероприятие
	CountryCode     string    `db:"country_code"`     // ISO 3166-1 alpha-2
	CarnivalCircuit string    `db:"carnival_circuit"` // Карнавальный круг (может быть пустым)
}

// NormalizeAccessCode приводит код доступа к каноничному виду.
// Коды вводят руками, поэтому регистр и пробелы по краям игнорируем.
func NormalizeAccessCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
