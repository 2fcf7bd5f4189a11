package events

import (
	"context"
	"errors"
	"testing"

	"serotonyl.ru/passport/internal/common"
)

func TestMemoryCatalogNormalizesCodes(t *testing.T) {
	c := NewMemoryCatalog(Event{ID: 3, Title: "Notting Hill", AccessCode: " nh-2026 "})

	e, err := c.GetByAccessCode(context.Background(), "NH-2026")
	if err != nil {
		t.Fatalf("GetByAccessCode: %v", err)
	}
	if e.ID != 3 {
		t.Errorf("ID = %d, want 3", e.ID)
	}

	if _, err := c.GetByAccessCode(context.Background(), "nope"); !errors.Is(err, common.ErrEventNotFound) {
		t.Errorf("err = %v, want ErrEventNotFound", err)
	}
}
