// Package achievements выдаёт достижения за историю штампов.
// models.go описывает достижения и правила их получения.
package achievements

import (
	"time"

	"serotonyl.ru/passport/internal/features/passport"
)

// Code — идентификатор достижения.
type Code string

const (
	FirstStamp      Code = "FIRST_STAMP"
	FiveStamps      Code = "FIVE_STAMPS"
	Globetrotter    Code = "GLOBETROTTER"
	WorldTraveler   Code = "WORLD_TRAVELER"
	CircuitRegular  Code = "CIRCUIT_REGULAR"
	CircuitExplorer Code = "CIRCUIT_EXPLORER"
	Centurion       Code = "CENTURION"
)

// Unlock — полученное достижение. Одна запись на пару (UserID, Code).
type Unlock struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	Code       Code      `db:"achievement_code"`
	Title      string    `db:"-"`
	UnlockedAt time.Time `db:"unlocked_at"`
}

// Progress — то, по чему проверяются правила.
type Progress struct {
	Profile *passport.Profile
	Stamps  []*passport.Stamp
}

// Rule — достижение и условие его получения.
type Rule struct {
	Code  Code
	Title string
	Check func(p Progress) bool
}

// DefaultRules — встроенный набор достижений.
func DefaultRules() []Rule {
	return []Rule{
		{Code: FirstStamp, Title: "Первый штамп", Check: func(p Progress) bool {
			return len(p.Stamps) >= 1
		}},
		{Code: FiveStamps, Title: "Пять штампов", Check: func(p Progress) bool {
			return len(p.Stamps) >= 5
		}},
		{Code: Globetrotter, Title: "Путешественник", Check: func(p Progress) bool {
			return countries(p.Stamps) >= 3
		}},
		{Code: WorldTraveler, Title: "Гражданин мира", Check: func(p Progress) bool {
			return countries(p.Stamps) >= 10
		}},
		{Code: CircuitRegular, Title: "Завсегдатай круга", Check: func(p Progress) bool {
			for _, n := range circuits(p.Stamps) {
				if n >= 3 {
					return true
				}
			}
			return false
		}},
		{Code: CircuitExplorer, Title: "Исследователь кругов", Check: func(p Progress) bool {
			return len(circuits(p.Stamps)) >= 3
		}},
		{Code: Centurion, Title: "Центурион", Check: func(p Progress) bool {
			return p.Profile != nil && p.Profile.TotalEvents >= 100
		}},
	}
}

// countries считает различные непустые страны.
func countries(stamps []*passport.Stamp) int {
	seen := make(map[string]struct{})
	for _, s := range stamps {
		if s.CountryCode != "" {
			seen[s.CountryCode] = struct{}{}
		}
	}
	return len(seen)
}

// circuits возвращает количество штампов по каждому карнавальному кругу.
func circuits(stamps []*passport.Stamp) map[string]int {
	out := make(map[string]int)
	for _, s := range stamps {
		if s.CarnivalCircuit != "" {
			out[s.CarnivalCircuit]++
		}
	}
	return out
}
