// Package tiers определяет уровень паспорта по сумме баллов.
//
// Таблица уровней — упорядоченный список (имя, порог). Уровень — самый
// высокий, чей порог не больше баллов. Порог включительный: ровно 500
// баллов при SILVER:500 — это уже SILVER.
package tiers

import (
	"fmt"
	"sort"
)

// Tier — имя уровня.
type Tier string

// Стандартные уровни.
const (
	Bronze Tier = "BRONZE"
	Silver Tier = "SILVER"
	Gold   Tier = "GOLD"
	Elite  Tier = "ELITE"
)

// Level — одна строка таблицы уровней.
type Level struct {
	Name      Tier
	MinPoints int64
}

// Table — таблица уровней, отсортированная по возрастанию порога.
type Table struct {
	levels []Level
}

// DefaultTable — BRONZE:0, SILVER:500, GOLD:1500, ELITE:5000.
func DefaultTable() Table {
	t, _ := NewTable([]Level{
		{Name: Bronze, MinPoints: 0},
		{Name: Silver, MinPoints: 500},
		{Name: Gold, MinPoints: 1500},
		{Name: Elite, MinPoints: 5000},
	})
	return t
}

// NewTable проверяет и сортирует уровни.
func NewTable(levels []Level) (Table, error) {
	if len(levels) == 0 {
		return Table{}, fmt.Errorf("таблица уровней пуста")
	}
	sorted := make([]Level, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinPoints < sorted[j].MinPoints })

	if sorted[0].MinPoints != 0 {
		return Table{}, fmt.Errorf("нижний уровень %s должен начинаться с 0", sorted[0].Name)
	}
	seen := make(map[Tier]bool, len(sorted))
	for i, l := range sorted {
		if seen[l.Name] {
			return Table{}, fmt.Errorf("уровень %s задан дважды", l.Name)
		}
		seen[l.Name] = true
		if i > 0 && sorted[i-1].MinPoints == l.MinPoints {
			return Table{}, fmt.Errorf("у %s и %s одинаковый порог", sorted[i-1].Name, l.Name)
		}
	}
	return Table{levels: sorted}, nil
}

// FromMap строит таблицу из конфига вида {"BRONZE":0,"SILVER":500}.
func FromMap(m map[string]int64) (Table, error) {
	levels := make([]Level, 0, len(m))
	for name, min := range m {
		levels = append(levels, Level{Name: Tier(name), MinPoints: min})
	}
	return NewTable(levels)
}

// Levels возвращает копию строк таблицы.
func (t Table) Levels() []Level {
	out := make([]Level, len(t.levels))
	copy(out, t.levels)
	return out
}

// Lowest возвращает начальный уровень.
func (t Table) Lowest() Tier {
	if len(t.levels) == 0 {
		return Bronze
	}
	return t.levels[0].Name
}

// Classify возвращает уровень для суммы баллов.
func (t Table) Classify(points int64) Tier {
	tier := t.Lowest()
	for _, l := range t.levels {
		if points < l.MinPoints {
			break
		}
		tier = l.Name
	}
	return tier
}

// Rank возвращает позицию уровня в таблице (-1, если уровня нет).
func (t Table) Rank(tier Tier) int {
	for i, l := range t.levels {
		if l.Name == tier {
			return i
		}
	}
	return -1
}

// Upgrade — результат проверки повышения.
type Upgrade struct {
	Upgraded bool
	OldTier  Tier
	NewTier  Tier
}

// CheckUpgrade сравнивает прежний уровень с уровнем по текущим баллам.
// Понижение здесь не моделируется: баллы при отметке только растут.
// Неизвестный прежний уровень считается ниже любого.
func (t Table) CheckUpgrade(old Tier, points int64) Upgrade {
	next := t.Classify(points)
	return Upgrade{
		Upgraded: t.Rank(next) > t.Rank(old),
		OldTier:  old,
		NewTier:  next,
	}
}
