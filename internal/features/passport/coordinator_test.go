package passport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"serotonyl.ru/passport/internal/features/credits"
	"serotonyl.ru/passport/internal/features/events"
	"serotonyl.ru/passport/internal/features/tiers"
)

func newTestCoordinator() (*Coordinator, *MemoryStore) {
	store := NewMemoryStore(tiers.Bronze)
	return NewCoordinator(store, credits.NewPolicy(100, 250)), store
}

func event(id int64, country string) events.Event {
	return events.Event{ID: id, Title: "Event", CheckinEnabled: true, CountryCode: country}
}

func TestAwardCreatesAllRecords(t *testing.T) {
	c, store := newTestCoordinator()
	ctx := context.Background()

	out, err := c.Award(ctx, AwardRequest{UserID: 1, Handle: "ann", Event: event(10, "TT"), Method: MethodQRScan})
	if err != nil {
		t.Fatalf("Award: %v", err)
	}
	if out.Credits != 100 || out.Profile.TotalPoints != 100 {
		t.Errorf("credits=%d total=%d, want 100/100", out.Credits, out.Profile.TotalPoints)
	}
	if out.PreviousTier != tiers.Bronze {
		t.Errorf("PreviousTier = %s", out.PreviousTier)
	}
	if out.Profile.TotalEvents != 1 || out.Profile.TotalCountries != 1 {
		t.Errorf("aggregates = %d/%d", out.Profile.TotalEvents, out.Profile.TotalCountries)
	}
	if out.Transaction.RelatedEntityID != out.Stamp.ID {
		t.Errorf("транзакция ссылается на %d, штамп %d", out.Transaction.RelatedEntityID, out.Stamp.ID)
	}
	if out.Transaction.Type != TxEarn || out.Transaction.Reason != ReasonCheckIn {
		t.Errorf("транзакция %s/%s", out.Transaction.Type, out.Transaction.Reason)
	}
	if out.Profile.Handle != "ann" {
		t.Errorf("Handle = %q", out.Profile.Handle)
	}
	if n := store.CheckInCount(1); n != 1 {
		t.Errorf("отметок %d, want 1", n)
	}
}

func TestAwardSequentialRepeat(t *testing.T) {
	c, store := newTestCoordinator()
	ctx := context.Background()
	req := AwardRequest{UserID: 1, Event: event(10, "TT"), Method: MethodQRScan}

	first, err := c.Award(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Award(ctx, req)
	var dup *AlreadyCheckedInError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want *AlreadyCheckedInError", err)
	}
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Error("errors.Is(err, ErrAlreadyCheckedIn) = false")
	}
	if dup.Stamp.ID != first.Stamp.ID || dup.CheckIn.ID != first.CheckIn.ID {
		t.Errorf("вернулась не исходная отметка: %+v", dup)
	}

	if n := store.CheckInCount(1); n != 1 {
		t.Errorf("отметок %d, want 1", n)
	}
	if n := len(store.Ledger(1)); n != 1 {
		t.Errorf("транзакций %d, want 1", n)
	}
	p, _ := store.GetProfile(ctx, 1)
	if p.TotalPoints != 100 {
		t.Errorf("TotalPoints = %d, want 100", p.TotalPoints)
	}
}

func TestAwardConcurrentSamePair(t *testing.T) {
	c, store := newTestCoordinator()
	ctx := context.Background()
	req := AwardRequest{UserID: 7, Event: event(3, "TT"), Method: MethodQRScan}

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Award(ctx, req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	awarded, dups := 0, 0
	for err := range results {
		switch {
		case err == nil:
			awarded++
		case errors.Is(err, ErrAlreadyCheckedIn):
			dups++
		default:
			t.Errorf("неожиданная ошибка: %v", err)
		}
	}
	if awarded != 1 || dups != workers-1 {
		t.Errorf("awarded=%d dups=%d", awarded, dups)
	}
	if n := len(store.Ledger(7)); n != 1 {
		t.Errorf("транзакций %d, want 1", n)
	}
}

func TestAwardAggregatesAcrossEvents(t *testing.T) {
	c, store := newTestCoordinator()
	ctx := context.Background()

	countries := []string{"TT", "BB", "TT", "", "GD", "BB"}
	var wg sync.WaitGroup
	for i, cc := range countries {
		wg.Add(1)
		go func(id int64, cc string) {
			defer wg.Done()
			if _, err := c.Award(ctx, AwardRequest{UserID: 5, Event: event(id, cc), Method: MethodCodeEntry}); err != nil {
				t.Errorf("Award(%d): %v", id, err)
			}
		}(int64(i+1), cc)
	}
	wg.Wait()

	p, err := store.GetProfile(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalEvents != len(countries) {
		t.Errorf("TotalEvents = %d, want %d", p.TotalEvents, len(countries))
	}
	if p.TotalCountries != 3 {
		t.Errorf("TotalCountries = %d, want 3", p.TotalCountries)
	}

	var sum int64
	for _, tx := range store.Ledger(5) {
		if tx.Type == TxEarn {
			sum += tx.Amount
		}
	}
	if sum != p.TotalPoints {
		t.Errorf("журнал %d != профиль %d", sum, p.TotalPoints)
	}
}

func TestAwardRollsBackOnFailure(t *testing.T) {
	steps := []string{StepInsertStamp, StepInsertTransaction, StepRecompute, StepApplyAward}
	for _, step := range steps {
		t.Run(step, func(t *testing.T) {
			c, store := newTestCoordinator()
			ctx := context.Background()
			boom := errors.New("boom")
			store.FailOn(step, boom)

			_, err := c.Award(ctx, AwardRequest{UserID: 1, Event: event(10, "TT"), Method: MethodQRScan})
			if !errors.Is(err, boom) {
				t.Fatalf("err = %v, want boom", err)
			}
			if errors.Is(err, ErrAlreadyCheckedIn) {
				t.Fatal("сбой не должен выглядеть как повтор")
			}
			if n := store.CheckInCount(1); n != 0 {
				t.Errorf("отметок %d после отката", n)
			}
			if n := len(store.Ledger(1)); n != 0 {
				t.Errorf("транзакций %d после отката", n)
			}
			stamps, _ := store.ListStamps(ctx, 1)
			if len(stamps) != 0 {
				t.Errorf("штампов %d после отката", len(stamps))
			}
			p, _ := store.GetProfile(ctx, 1)
			if p.TotalPoints != 0 || p.TotalEvents != 0 {
				t.Errorf("профиль изменён: %+v", p)
			}

			// После снятия сбоя та же отметка проходит.
			store.FailOn(step, nil)
			if _, err := c.Award(ctx, AwardRequest{UserID: 1, Event: event(10, "TT"), Method: MethodQRScan}); err != nil {
				t.Fatalf("повтор после отката: %v", err)
			}
		})
	}
}

func TestAwardOverrideCredits(t *testing.T) {
	c, _ := newTestCoordinator()
	e := event(1, "TT")
	e.IsPremium = true
	e.CreditsOverride = 500

	out, err := c.Award(context.Background(), AwardRequest{UserID: 1, Event: e, Method: MethodQRScan})
	if err != nil {
		t.Fatal(err)
	}
	if out.Profile.TotalPoints != 500 || !out.CheckIn.IsPremium {
		t.Errorf("total=%d premium=%v", out.Profile.TotalPoints, out.CheckIn.IsPremium)
	}
	// Уровень классифицирует уже Reconciler; здесь только баллы.
	if out.Profile.CurrentTier != tiers.Bronze {
		t.Errorf("CurrentTier = %s", out.Profile.CurrentTier)
	}
}

func TestEnsureProfileHandleCollision(t *testing.T) {
	store := NewMemoryStore(tiers.Bronze)
	ctx := context.Background()
	if _, err := store.EnsureProfile(ctx, 1, "ann"); err != nil {
		t.Fatal(err)
	}
	p, err := store.EnsureProfile(ctx, 2, "ann")
	if err != nil {
		t.Fatal(err)
	}
	if p.Handle != "ann-2" {
		t.Errorf("Handle = %q, want ann-2", p.Handle)
	}
	p, _ = store.EnsureProfile(ctx, 3, "")
	if p.Handle != "traveler3" {
		t.Errorf("Handle = %q, want traveler3", p.Handle)
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := ParseMethod(""); err != nil || m != MethodQRScan {
		t.Errorf("ParseMethod(\"\") = %s, %v", m, err)
	}
	if m, err := ParseMethod(" geo_checkin "); err != nil || m != MethodGeoCheckin {
		t.Errorf("ParseMethod(geo) = %s, %v", m, err)
	}
	if _, err := ParseMethod("TELEPATHY"); err == nil {
		t.Error("ожидалась ошибка")
	}
}
