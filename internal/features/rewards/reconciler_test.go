package rewards

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"serotonyl.ru/passport/internal/features/achievements"
	"serotonyl.ru/passport/internal/features/credits"
	"serotonyl.ru/passport/internal/features/events"
	"serotonyl.ru/passport/internal/features/passport"
	"serotonyl.ru/passport/internal/features/tiers"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[int64][]string)
	}
	n.sent[userID] = append(n.sent[userID], text)
	return n.err
}

type env struct {
	store      *passport.MemoryStore
	coord      *passport.Coordinator
	rewards    *MemoryRepository
	notifier   *recordingNotifier
	reconciler *Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	table, err := tiers.NewTable([]tiers.Level{
		{Name: tiers.Bronze, MinPoints: 0},
		{Name: tiers.Silver, MinPoints: 500},
		{Name: tiers.Gold, MinPoints: 1500},
	})
	if err != nil {
		t.Fatal(err)
	}
	store := passport.NewMemoryStore(tiers.Bronze)
	repo := NewMemoryRepository()
	n := &recordingNotifier{}
	engine := achievements.NewEngine(store, achievements.NewMemoryRepository())
	return &env{
		store:      store,
		coord:      passport.NewCoordinator(store, credits.NewPolicy(100, 250)),
		rewards:    repo,
		notifier:   n,
		reconciler: NewReconciler(store, repo, engine, n, table, 0),
	}
}

func (e *env) award(t *testing.T, userID, eventID, override int64) *passport.AwardOutcome {
	t.Helper()
	out, err := e.coord.Award(context.Background(), passport.AwardRequest{
		UserID: userID,
		Event:  events.Event{ID: eventID, CheckinEnabled: true, CountryCode: "TT", CreditsOverride: override},
		Method: passport.MethodQRScan,
	})
	if err != nil {
		t.Fatalf("Award(%d): %v", eventID, err)
	}
	return out
}

func (e *env) reconcile(out *passport.AwardOutcome) *ReconcileResult {
	return e.reconciler.Reconcile(context.Background(), ReconcileInput{
		UserID:       out.Profile.UserID,
		PreviousTier: out.PreviousTier,
		Profile:      out.Profile,
	})
}

func countCode(list []*Reward, code string) int {
	n := 0
	for _, r := range list {
		if r.Code == code {
			n++
		}
	}
	return n
}

func TestReconcileTierUpgradeTo500(t *testing.T) {
	e := newEnv(t)
	res := e.reconcile(e.award(t, 1, 1, 500))

	if len(res.Errors) != 0 {
		t.Fatalf("ошибки шагов: %v", res.Errors)
	}
	if !res.TierUpdated || res.PreviousTier != tiers.Bronze || res.NewTier != tiers.Silver {
		t.Fatalf("tierUpdated=%v previous=%s new=%s", res.TierUpdated, res.PreviousTier, res.NewTier)
	}
	p, _ := e.store.GetProfile(context.Background(), 1)
	if p.CurrentTier != tiers.Silver {
		t.Errorf("в хранилище уровень %s", p.CurrentTier)
	}

	list, _ := e.rewards.ListByUser(context.Background(), 1)
	if countCode(list, "WELCOME_SILVER") != 1 {
		t.Errorf("нет WELCOME_SILVER: %+v", list)
	}
	r := list[0]
	if r.Metadata.TierUpgrade == nil || r.Metadata.TierUpgrade.ToTier != tiers.Silver || r.Metadata.TierUpgrade.FromTier != tiers.Bronze {
		t.Errorf("метаданные %+v", r.Metadata)
	}
	if !strings.HasPrefix(r.Metadata.DiscountCode, "PSP-") {
		t.Errorf("промокод %q", r.Metadata.DiscountCode)
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		t.Errorf("срок %v не позже создания %v", r.ExpiresAt, r.CreatedAt)
	}

	sent := e.notifier.sent[1]
	if len(sent) != 1 || !strings.Contains(sent[0], "SILVER") {
		t.Errorf("уведомления %q", sent)
	}
}

func TestReconcileNoUpgradeBelowThreshold(t *testing.T) {
	e := newEnv(t)
	res := e.reconcile(e.award(t, 1, 1, 0))
	if res.TierUpdated || res.NewTier != tiers.Bronze {
		t.Errorf("tierUpdated=%v new=%s", res.TierUpdated, res.NewTier)
	}
	if len(res.Rewards) != 0 {
		t.Errorf("награды %+v", res.Rewards)
	}
	if len(res.Achievements) != 1 || res.Achievements[0].Code != achievements.FirstStamp {
		t.Errorf("достижения %+v", res.Achievements)
	}
}

func TestReconcileMilestoneNotDuplicated(t *testing.T) {
	e := newEnv(t)
	var last *passport.AwardOutcome
	for i := int64(1); i <= 10; i++ {
		last = e.award(t, 3, i, 10)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.reconcile(last)
		}()
	}
	wg.Wait()
	e.reconcile(last)

	list, _ := e.rewards.ListByUser(context.Background(), 3)
	if n := countCode(list, "MILE10"); n != 1 {
		t.Fatalf("MILE10 выдана %d раз", n)
	}
	if n := countCode(list, "MILE25"); n != 0 {
		t.Errorf("MILE25 при 10 мероприятиях")
	}
	if e.rewards.Inserts() != 1 {
		t.Errorf("вставок %d, want 1", e.rewards.Inserts())
	}
}

func TestReconcileTierWriteFailureIsRepairedLater(t *testing.T) {
	e := newEnv(t)
	e.store.FailOn(passport.StepUpdateTier, errors.New("db down"))

	res := e.reconcile(e.award(t, 4, 1, 600))
	if len(res.Errors) == 0 {
		t.Fatal("ожидалась ошибка шага tier")
	}
	if res.TierUpdated {
		t.Error("уровень не записан, но tierUpdated=true")
	}
	if len(res.Achievements) == 0 {
		t.Error("достижения должны выдаваться несмотря на сбой уровня")
	}
	if res.Profile.TotalPoints != 600 {
		t.Errorf("начисление потеряно: %d", res.Profile.TotalPoints)
	}

	// Ночной проход без снимка чинит уровень и выдаёт приветственную награду.
	e.store.FailOn(passport.StepUpdateTier, nil)
	res = e.reconciler.Reconcile(context.Background(), ReconcileInput{UserID: 4})
	if len(res.Errors) != 0 {
		t.Fatalf("ошибки: %v", res.Errors)
	}
	if !res.TierUpdated || res.NewTier != tiers.Silver {
		t.Errorf("tierUpdated=%v new=%s", res.TierUpdated, res.NewTier)
	}
	list, _ := e.rewards.ListByUser(context.Background(), 4)
	if countCode(list, "WELCOME_SILVER") != 1 {
		t.Errorf("награды %+v", list)
	}
}

func TestReconcileOutOfOrderNeverLowersTier(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Две отметки зафиксированы, шаги после них идут в обратном порядке.
	first := e.award(t, 7, 1, 500)
	second := e.award(t, 7, 2, 1100)

	resSecond := e.reconcile(second)
	if !resSecond.TierUpdated || resSecond.NewTier != tiers.Gold {
		t.Fatalf("второй: tierUpdated=%v new=%s", resSecond.TierUpdated, resSecond.NewTier)
	}

	resFirst := e.reconcile(first)
	if len(resFirst.Errors) != 0 {
		t.Fatalf("ошибки: %v", resFirst.Errors)
	}
	if resFirst.TierUpdated || resFirst.NewTier != tiers.Gold {
		t.Errorf("первый: tierUpdated=%v new=%s", resFirst.TierUpdated, resFirst.NewTier)
	}

	p, _ := e.store.GetProfile(ctx, 7)
	if p.CurrentTier != tiers.Gold || p.TotalPoints != 1600 {
		t.Errorf("в хранилище %s / %d", p.CurrentTier, p.TotalPoints)
	}

	list, _ := e.rewards.ListByUser(ctx, 7)
	if countCode(list, "WELCOME_GOLD") != 1 {
		t.Errorf("нет WELCOME_GOLD: %+v", list)
	}
	if countCode(list, "WELCOME_SILVER") != 0 {
		t.Errorf("устаревшая WELCOME_SILVER после GOLD: %+v", list)
	}
}

func TestReconcileStaleSnapshotStillUpgrades(t *testing.T) {
	e := newEnv(t)
	e.reconcile(e.award(t, 8, 1, 500))
	second := e.award(t, 8, 2, 1100)

	// Снимок отстал: в нём BRONZE, а в хранилище уже SILVER.
	stale := *second.Profile
	stale.CurrentTier = tiers.Bronze
	res := e.reconciler.Reconcile(context.Background(), ReconcileInput{
		UserID:       8,
		PreviousTier: tiers.Bronze,
		Profile:      &stale,
	})
	if len(res.Errors) != 0 {
		t.Fatalf("ошибки: %v", res.Errors)
	}
	if !res.TierUpdated || res.NewTier != tiers.Gold {
		t.Errorf("tierUpdated=%v new=%s", res.TierUpdated, res.NewTier)
	}
	p, _ := e.store.GetProfile(context.Background(), 8)
	if p.CurrentTier != tiers.Gold {
		t.Errorf("в хранилище %s", p.CurrentTier)
	}
}

func TestReconcileConcurrentTierWritesConverge(t *testing.T) {
	e := newEnv(t)
	outs := []*passport.AwardOutcome{
		e.award(t, 9, 1, 500),
		e.award(t, 9, 2, 1100),
		e.award(t, 9, 3, 100),
	}

	var wg sync.WaitGroup
	for i := len(outs) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(out *passport.AwardOutcome) {
			defer wg.Done()
			e.reconcile(out)
		}(outs[i])
	}
	wg.Wait()

	p, _ := e.store.GetProfile(context.Background(), 9)
	if p.CurrentTier != tiers.Gold {
		t.Errorf("уровень %s при %d баллах", p.CurrentTier, p.TotalPoints)
	}
}

func TestReconcileNotifierFailureIgnored(t *testing.T) {
	e := newEnv(t)
	e.notifier.err = errors.New("telegram down")
	res := e.reconcile(e.award(t, 5, 1, 500))
	if len(res.Errors) != 0 {
		t.Errorf("ошибка уведомления попала в результат: %v", res.Errors)
	}
	if !res.TierUpdated {
		t.Error("tierUpdated=false")
	}
}

func TestReconcileUnknownProfile(t *testing.T) {
	e := newEnv(t)
	res := e.reconciler.Reconcile(context.Background(), ReconcileInput{UserID: 404})
	if len(res.Errors) != 1 || res.Profile != nil {
		t.Errorf("res = %+v", res)
	}
}

func TestMetadataValidate(t *testing.T) {
	ok := Metadata{Category: CategoryMilestone, Milestone: &MilestoneDetails{Events: 10}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	bad := []Metadata{
		{Category: CategoryMilestone},
		{Category: CategoryTierUpgrade, Milestone: &MilestoneDetails{Events: 10}},
		{Category: CategoryTierUpgrade, TierUpgrade: &TierUpgradeDetails{ToTier: tiers.Gold}, Milestone: &MilestoneDetails{}},
		{Category: "GIFT"},
	}
	for _, m := range bad {
		if err := m.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil", m)
		}
	}
}
