package usecase

import (
	"context"
	"errors"
	"testing"

	"OrbLab/internal/domain/models"
)

func TestCombinations(t *testing.T) {
	combos := Combinations(map[string][]float64{
		"volume_multiplier": {1, 1.5},
		"confirmation_bars": {1, 2, 3},
		"unused":            nil,
	})
	if len(combos) != 6 {
		t.Fatalf("expected 6 combos, got %d", len(combos))
	}
	// sorted keys: confirmation_bars varies slowest
	if combos[0]["confirmation_bars"] != 1 || combos[0]["volume_multiplier"] != 1 || combos[1]["volume_multiplier"] != 1.5 {
		t.Fatalf("unexpected order %v", combos[:2])
	}
	if combos[5]["confirmation_bars"] != 3 {
		t.Fatalf("unexpected last combo %v", combos[5])
	}
	if len(Combinations(DefaultGrid())) != 4*3*2*3 {
		t.Fatalf("default grid size changed")
	}
	if Combinations(nil) != nil {
		t.Fatalf("empty grid must yield no combos")
	}
}

func TestRank(t *testing.T) {
	entries := []models.SweepEntry{
		{Values: map[string]float64{"k": 1}, Metrics: models.Metrics{SharpeRatio: 1, TotalReturnPct: 5}},
		{Values: map[string]float64{"k": 2}, Error: "bad"},
		{Values: map[string]float64{"k": 3}, Metrics: models.Metrics{SharpeRatio: 2, TotalReturnPct: 1}},
		{Values: map[string]float64{"k": 4}, Metrics: models.Metrics{SharpeRatio: 1, TotalReturnPct: 7}},
	}
	Rank(entries)
	got := []float64{entries[0].Values["k"], entries[1].Values["k"], entries[2].Values["k"], entries[3].Values["k"]}
	want := []float64{3, 4, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank order %v, want %v", got, want)
		}
	}
}

func TestGridSweep(t *testing.T) {
	bars := newFakeBars("SPY", breakoutDays(4, 5, 6))
	uc := NewSweepUseCase(bars, newFakeMetrics(), nil)
	res, err := uc.Grid(context.Background(), SweepParams{
		Symbol: "spy",
		Base:   testParams(),
		Grid: map[string][]float64{
			"confirmation_bars":   {1, 2},
			"target_1_multiplier": {1.0, 3.0},
		},
		Workers: 3,
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Combos != 4 || res.Rejected != 2 || len(res.Entries) != 4 {
		t.Fatalf("unexpected sweep summary combos=%d rejected=%d entries=%d", res.Combos, res.Rejected, len(res.Entries))
	}
	for i, e := range res.Entries[:2] {
		if e.Error != "" || e.Metrics.TotalTrades != 3 {
			t.Fatalf("entry %d: %+v", i, e)
		}
	}
	if res.Entries[3].Error == "" || res.Entries[3].Values["target_1_multiplier"] != 3 {
		t.Fatalf("rejected combos must rank last: %+v", res.Entries[3])
	}
	if bars.calls != 1 {
		t.Fatalf("bars must be loaded once, loaded %d times", bars.calls)
	}
}

func TestGridSweepTopAndUnknownKey(t *testing.T) {
	uc := NewSweepUseCase(newFakeBars("SPY", breakoutDays(4)), newFakeMetrics(), nil)
	res, err := uc.Grid(context.Background(), SweepParams{Symbol: "SPY", Base: testParams(), Workers: 4, Top: 5})
	if err != nil {
		t.Fatal(err)
	}
	if res.Combos != 72 || len(res.Entries) != 5 {
		t.Fatalf("default grid: combos=%d entries=%d", res.Combos, len(res.Entries))
	}

	var cfgErr *models.ConfigurationError
	_, err = uc.Grid(context.Background(), SweepParams{Symbol: "SPY", Base: testParams(), Grid: map[string][]float64{"atr_period": {5}}})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for unsweepable key, got %v", err)
	}
}

func TestGridSweepCancelled(t *testing.T) {
	uc := NewSweepUseCase(newFakeBars("SPY", breakoutDays(4)), newFakeMetrics(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := uc.Grid(ctx, SweepParams{Symbol: "SPY", Base: testParams()}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWalkForward(t *testing.T) {
	uc := NewSweepUseCase(newFakeBars("SPY", breakoutDays(4, 5, 6, 7, 8, 11)), newFakeMetrics(), nil)
	res, err := uc.WalkForward(context.Background(), WalkForwardParams{
		SweepParams: SweepParams{
			Symbol:  "SPY",
			Base:    testParams(),
			Grid:    map[string][]float64{"confirmation_bars": {1, 2}},
			Workers: 2,
		},
		TrainDays: 3,
		TestDays:  1,
	})
	if err != nil {
		t.Fatalf("walk-forward: %v", err)
	}
	if len(res.Windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(res.Windows))
	}
	w := res.Windows[0]
	if w.TrainFrom != "2024-03-04" || w.TrainTo != "2024-03-06" || w.TestFrom != "2024-03-07" || w.TestTo != "2024-03-07" {
		t.Fatalf("window bounds %+v", w)
	}
	if w.Best == nil || w.Train.TotalTrades != 3 || w.Test.TotalTrades != 1 {
		t.Fatalf("window metrics %+v", w)
	}
	if res.TestTrades != 3 {
		t.Fatalf("expected 3 out-of-sample trades, got %d", res.TestTrades)
	}

	var dataErr *models.DataError
	_, err = uc.WalkForward(context.Background(), WalkForwardParams{SweepParams: SweepParams{Symbol: "SPY", Base: testParams()}, TrainDays: 20, TestDays: 5})
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected DataError for short history, got %v", err)
	}
}

func TestComboCount(t *testing.T) {
	if n := ComboCount(DefaultGrid(), DefaultMaxCombos); n != 4*3*2*3 {
		t.Fatalf("default grid count %d", n)
	}
	if n := ComboCount(map[string][]float64{"unused": nil}, 10); n != 0 {
		t.Fatalf("empty grid count %d", n)
	}
	values := make([]float64, 10)
	huge := map[string][]float64{}
	for _, k := range []string{"confirmation_bars", "volume_multiplier", "min_or_range_pct", "initial_stop_multiplier",
		"target_1_multiplier", "target_2_multiplier", "target_3_multiplier", "breakeven_multiplier"} {
		huge[k] = values
	}
	if n := ComboCount(huge, 1000); n != 1001 {
		t.Fatalf("count must stop past the limit, got %d", n)
	}
}

func TestOversizedGridIsRejected(t *testing.T) {
	bars := newFakeBars("SPY", breakoutDays(4, 5, 6))
	uc := NewSweepUseCase(bars, newFakeMetrics(), nil)
	uc.SetMaxCombos(5)
	grid := map[string][]float64{
		"confirmation_bars": {1, 2, 3},
		"volume_multiplier": {1, 1.5},
	}

	var cfgErr *models.ConfigurationError
	_, err := uc.Grid(context.Background(), SweepParams{Symbol: "SPY", Base: testParams(), Grid: grid})
	if !errors.As(err, &cfgErr) || cfgErr.Field != "Grid" {
		t.Fatalf("expected Grid ConfigurationError, got %v", err)
	}
	_, err = uc.WalkForward(context.Background(), WalkForwardParams{
		SweepParams: SweepParams{Symbol: "SPY", Base: testParams(), Grid: grid}, TrainDays: 1, TestDays: 1,
	})
	if !errors.As(err, &cfgErr) || cfgErr.Field != "Grid" {
		t.Fatalf("walk-forward: expected Grid ConfigurationError, got %v", err)
	}
	if bars.calls != 0 {
		t.Fatalf("bars must not load for a rejected grid, loaded %d times", bars.calls)
	}

	uc.SetMaxCombos(6)
	if _, err := uc.Grid(context.Background(), SweepParams{Symbol: "SPY", Base: testParams(), Grid: grid}); err != nil {
		t.Fatalf("grid at the cap must run: %v", err)
	}
}
