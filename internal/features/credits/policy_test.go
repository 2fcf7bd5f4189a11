package credits

import (
	"testing"

	"serotonyl.ru/passport/internal/features/events"
)

func TestComputePrecedence(t *testing.T) {
	p := NewPolicy(100, 250)

	tests := []struct {
		name string
		ev   events.Event
		want int64
	}{
		{"default", events.Event{}, 100},
		{"premium", events.Event{IsPremium: true}, 250},
		{"override wins over premium", events.Event{IsPremium: true, CreditsOverride: 30}, 30},
		{"override wins over default", events.Event{CreditsOverride: 500}, 500},
		{"non-positive override ignored", events.Event{CreditsOverride: -10, IsPremium: true}, 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Compute(tt.ev); got != tt.want {
				t.Errorf("Compute = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	p := NewPolicy(100, 250)
	ev := events.Event{IsPremium: true, CountryCode: "TT"}
	first := p.Compute(ev)
	for i := 0; i < 100; i++ {
		if got := p.Compute(ev); got != first {
			t.Fatalf("итерация %d: %d != %d", i, got, first)
		}
	}
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy(0, -1)
	if p.Default != DefaultCredits || p.Premium != PremiumCredits {
		t.Errorf("NewPolicy(0,-1) = %+v", p)
	}
}
