package budget_test

import (
	"context"
	"testing"
	"time"

	"github.com/oguzhankir/ai-gateway/budget"
	"github.com/oguzhankir/ai-gateway/gwerrors"
)

func TestCheckAdmitsUnderLimitAndRejectsOver(t *testing.T) {
	store := budget.NewInMemoryStore()
	m := budget.New(store, budget.Config{Enabled: true, DefaultLimitUSD: 1.0, DefaultPeriod: budget.Daily}, nil)
	ctx := context.Background()

	if err := m.Check(ctx, "p1", 0.5); err != nil {
		t.Fatalf("expected admit under limit, got %v", err)
	}
	if err := m.Track(ctx, "p1", 0.9); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	err := m.Check(ctx, "p1", 0.5)
	if err == nil {
		t.Fatalf("expected rejection once spend + estimate exceeds limit")
	}
	var exceeded *gwerrors.BudgetExceeded
	if !asBudgetExceeded(err, &exceeded) {
		t.Fatalf("expected *gwerrors.BudgetExceeded, got %T: %v", err, err)
	}
	if exceeded.Limit != 1.0 {
		t.Fatalf("expected limit 1.0 in error, got %v", exceeded.Limit)
	}
}

func asBudgetExceeded(err error, out **gwerrors.BudgetExceeded) bool {
	be, ok := err.(*gwerrors.BudgetExceeded)
	if ok {
		*out = be
	}
	return ok
}

func TestDisabledMeterAlwaysAdmits(t *testing.T) {
	store := budget.NewInMemoryStore()
	m := budget.New(store, budget.Config{Enabled: false}, nil)
	ctx := context.Background()
	if err := m.Check(ctx, "p1", 1_000_000); err != nil {
		t.Fatalf("disabled meter must always admit, got %v", err)
	}
}

func TestIsolatesPrincipals(t *testing.T) {
	store := budget.NewInMemoryStore()
	m := budget.New(store, budget.Config{Enabled: true, DefaultLimitUSD: 1.0, DefaultPeriod: budget.Daily}, nil)
	ctx := context.Background()

	_ = m.Track(ctx, "p1", 0.95)
	if err := m.Check(ctx, "p1", 0.5); err == nil {
		t.Fatalf("expected p1 to be near its limit")
	}
	if err := m.Check(ctx, "p2", 0.5); err != nil {
		t.Fatalf("expected p2's budget to be independent of p1, got %v", err)
	}
}

func TestAlertFiresOnceAtThreshold(t *testing.T) {
	store := budget.NewInMemoryStore()
	var fired []float64
	onAlert := func(_ context.Context, _ string, fraction, _, _ float64) {
		fired = append(fired, fraction)
	}
	m := budget.New(store, budget.Config{
		Enabled: true, DefaultLimitUSD: 10.0, DefaultPeriod: budget.Daily,
		AlertThresholds: []float64{0.5, 0.9},
	}, onAlert)
	ctx := context.Background()

	_ = m.Track(ctx, "p1", 6.0) // crosses 0.5
	_ = m.Track(ctx, "p1", 0.1) // still under 0.9
	_ = m.Track(ctx, "p1", 3.0) // crosses 0.9

	if len(fired) != 2 {
		t.Fatalf("expected exactly 2 alert firings, got %d: %v", len(fired), fired)
	}
}

func TestEstimateCostIsConstantRatePerWord(t *testing.T) {
	got := budget.EstimateCost(100)
	want := 1.3 * 100 * 2e-6
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRolloverResetsSpendAfterPeriodElapses(t *testing.T) {
	store := budget.NewInMemoryStore()
	m := budget.New(store, budget.Config{Enabled: true, DefaultLimitUSD: 1.0, DefaultPeriod: budget.Daily}, nil)
	ctx := context.Background()

	_ = m.Track(ctx, "p1", 0.95)
	if err := m.Check(ctx, "p1", 0.5); err == nil {
		t.Fatalf("expected over-limit before rollover")
	}

	record, ok, err := store.Get(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("expected stored record, ok=%v err=%v", ok, err)
	}
	record.ResetAt = time.Now().UTC().Add(-time.Minute)
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := m.Check(ctx, "p1", 0.5); err != nil {
		t.Fatalf("expected rollover to reset spend and admit, got %v", err)
	}
}
