package checkin

import (
	"context"
	"errors"
	"testing"

	"serotonyl.ru/passport/internal/common"
	"serotonyl.ru/passport/internal/features/credits"
	"serotonyl.ru/passport/internal/features/events"
	"serotonyl.ru/passport/internal/features/passport"
	"serotonyl.ru/passport/internal/features/rewards"
)

type countingReconciler struct {
	calls int
}

func (c *countingReconciler) Reconcile(_ context.Context, in rewards.ReconcileInput) *rewards.ReconcileResult {
	c.calls++
	return &rewards.ReconcileResult{Profile: in.Profile, PreviousTier: in.PreviousTier, NewTier: in.Profile.CurrentTier}
}

type brokenCatalog struct{}

func (brokenCatalog) GetByAccessCode(context.Context, string) (*events.Event, error) {
	return nil, errors.New("connection refused")
}

func TestCheckInStates(t *testing.T) {
	app := newTestApp(t)
	rec := &countingReconciler{}
	svc := NewService(app.codec, app.catalog, passport.NewCoordinator(app.store, credits.NewPolicy(100, 250)), rec, app.store)
	ctx := context.Background()
	tok := app.codec.Issue(11)

	res, err := svc.CheckIn(ctx, Request{QRData: "bad", AccessCode: "TTC-2026"})
	var rej *Rejection
	if !errors.As(err, &rej) || res.State != StateRejected || rej.Code != CodeInvalidToken {
		t.Fatalf("state=%s err=%v", res.State, err)
	}

	res, err = svc.CheckIn(ctx, Request{QRData: tok, AccessCode: "CLOSED"})
	if !errors.As(err, &rej) || res.State != StateRejected || !errors.Is(err, common.ErrCheckinDisabled) {
		t.Fatalf("state=%s err=%v", res.State, err)
	}

	res, err = svc.CheckIn(ctx, Request{QRData: tok, AccessCode: "TTC-2026"})
	if err != nil || res.State != StateAwarded || res.UserID != 11 {
		t.Fatalf("state=%s err=%v", res.State, err)
	}

	res, err = svc.CheckIn(ctx, Request{QRData: tok, AccessCode: "TTC-2026"})
	if err != nil || res.State != StateAlreadyStamped || res.Stamp == nil {
		t.Fatalf("state=%s err=%v", res.State, err)
	}

	if rec.calls != 1 {
		t.Errorf("Reconcile вызван %d раз, want 1", rec.calls)
	}
}

func TestCheckInCatalogFailureIsInternal(t *testing.T) {
	app := newTestApp(t)
	svc := NewService(app.codec, brokenCatalog{}, passport.NewCoordinator(app.store, credits.NewPolicy(100, 250)), nil, app.store)

	res, err := svc.CheckIn(context.Background(), Request{QRData: app.codec.Issue(1), AccessCode: "X"})
	var rej *Rejection
	if err == nil || errors.As(err, &rej) {
		t.Fatalf("err = %v, want внутреннюю ошибку", err)
	}
	if res.State != StateTokenVerified {
		t.Errorf("state = %s", res.State)
	}
}

func TestProfileRequiresUser(t *testing.T) {
	app := newTestApp(t)
	if _, err := app.service.Profile(context.Background(), 0, ""); !errors.Is(err, common.ErrUserNotFound) {
		t.Errorf("err = %v", err)
	}
}
