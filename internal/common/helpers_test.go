package common

import (
	"testing"
	"time"
)

func TestPluralizePoints(t *testing.T) {
	tests := map[int64]string{
		0:   "баллов",
		1:   "балл",
		3:   "балла",
		5:   "баллов",
		11:  "баллов",
		12:  "баллов",
		21:  "балл",
		104: "балла",
		-2:  "балла",
	}
	for n, want := range tests {
		if got := PluralizePoints(n); got != want {
			t.Errorf("PluralizePoints(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatPoints(t *testing.T) {
	if got := FormatPoints(150); got != "150 баллов" {
		t.Errorf("FormatPoints(150) = %q", got)
	}
}

func TestLoadLocationFallback(t *testing.T) {
	loc := LoadLocation("Nowhere/Atlantis")
	_, offset := time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
	if offset != 3*60*60 {
		t.Errorf("offset = %d, want UTC+3", offset)
	}
}
