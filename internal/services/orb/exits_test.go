package orb

import (
	"testing"

	"OrbLab/internal/domain/models"
)

func openLong(p models.Params, shares int) *models.Trade {
	lv := ComputeLevels(p, 101.20, 1, models.Long)
	return models.NewTrade("t1", "SPY", models.Long, at(4, 9, 50), 101.20, shares, lv, 1)
}

func TestTimeStopWinsOverEverything(t *testing.T) {
	p := models.DefaultParams()
	tr := openLong(p, 100)
	b := bar(at(4, 15, 55), 101, 104, 99, 100.9)
	o, ok := EvaluateExit(p, testSchedule(p), tr, b)
	if !ok || o.Reason != models.ExitTimeStop || o.Price != 100.9 || o.Shares != 0 {
		t.Fatalf("expected a full time stop at the close, got %+v", o)
	}
}

func TestStopLossBeatsTargetsOnTheSameBar(t *testing.T) {
	p := models.DefaultParams()
	tr := openLong(p, 100)
	b := bar(at(4, 10, 0), 101, 104, 100, 101)
	o, ok := EvaluateExit(p, testSchedule(p), tr, b)
	if !ok || o.Reason != models.ExitStopLoss || !near(o.Price, 100.45) {
		t.Fatalf("expected stop loss at 100.45, got %+v", o)
	}
}

func TestStopLossFillsAtGapOpen(t *testing.T) {
	p := models.DefaultParams()
	sch := testSchedule(p)

	long := openLong(p, 100)
	o, _ := EvaluateExit(p, sch, long, bar(at(4, 10, 0), 100, 100.2, 99.5, 99.8))
	if o.Reason != models.ExitStopLoss || o.Price != 100 {
		t.Fatalf("long gap below stop must fill at the open, got %+v", o)
	}

	lv := ComputeLevels(p, 99.80, 1, models.Short)
	short := models.NewTrade("t2", "SPY", models.Short, at(4, 9, 50), 99.80, 100, lv, 1)
	o, _ = EvaluateExit(p, sch, short, bar(at(4, 10, 0), 101, 101.5, 100.8, 101.2))
	if o.Reason != models.ExitStopLoss || o.Price != 101 {
		t.Fatalf("short gap above stop must fill at the open, got %+v", o)
	}
}

func TestTieredTargets(t *testing.T) {
	p := models.DefaultParams()
	sch := testSchedule(p)
	tr := openLong(p, 100)

	o, ok := EvaluateExit(p, sch, tr, bar(at(4, 10, 0), 101.5, 102.3, 101.4, 102.1))
	if !ok || o.Reason != models.ExitTarget1 || o.Shares != 50 || !near(o.Price, 102.20) {
		t.Fatalf("expected target 1 for 50 shares, got %+v", o)
	}
	if _, _, err := tr.Close(at(4, 10, 0), o.Price, o.Reason, o.Shares, 0); err != nil {
		t.Fatal(err)
	}

	// Beyond target 3 with 50 left: target 3 is guarded, target 2 fires.
	o, ok = EvaluateExit(p, sch, tr, bar(at(4, 10, 5), 102.2, 103.5, 102.1, 103.3))
	if !ok || o.Reason != models.ExitTarget2 || o.Shares != 25 {
		t.Fatalf("expected target 2 for 25 shares, got %+v", o)
	}
	if _, _, err := tr.Close(at(4, 10, 5), o.Price, o.Reason, o.Shares, 0); err != nil {
		t.Fatal(err)
	}

	o, ok = EvaluateExit(p, sch, tr, bar(at(4, 10, 10), 103.3, 103.4, 103.1, 103.2))
	if !ok || o.Reason != models.ExitTarget3 || o.Shares != 0 {
		t.Fatalf("expected target 3 for the remainder, got %+v", o)
	}
	state, fill, err := tr.Close(at(4, 10, 10), o.Price, o.Reason, o.Shares, 0)
	if err != nil || state != models.TradeClosed || fill.Shares != 25 {
		t.Fatalf("final close: state=%s fill=%+v err=%v", state, fill, err)
	}
	if tr.PartialShares()+tr.ExitShares != tr.Shares {
		t.Fatalf("share accounting broken: partial %d exit %d total %d", tr.PartialShares(), tr.ExitShares, tr.Shares)
	}
}

func TestTargetOneFiresOnlyOnce(t *testing.T) {
	p := models.DefaultParams()
	sch := testSchedule(p)
	tr := openLong(p, 100)
	_, _, _ = tr.Close(at(4, 10, 0), 102.2, models.ExitTarget1, 50, 0)

	if o, ok := EvaluateExit(p, sch, tr, bar(at(4, 10, 5), 102, 102.4, 101.9, 102.1)); ok {
		t.Fatalf("target 1 must not fire twice, got %+v", o)
	}
}

func TestZeroShareTierNeverFires(t *testing.T) {
	p := models.DefaultParams()
	tr := openLong(p, 1)
	if o, ok := EvaluateExit(p, testSchedule(p), tr, bar(at(4, 10, 0), 101.5, 102.3, 101.4, 102.1)); ok {
		t.Fatalf("a one-share position has no target 1 slice, got %+v", o)
	}
}

func TestRatchetBreakevenIsMonotonic(t *testing.T) {
	p := models.DefaultParams()
	tr := openLong(p, 100)

	if RatchetBreakeven(tr, bar(at(4, 10, 0), 101.2, 101.6, 101.1, 101.5)) {
		t.Fatalf("stop must not move before the trigger")
	}
	if !RatchetBreakeven(tr, bar(at(4, 10, 5), 101.5, 101.8, 101.4, 101.7)) {
		t.Fatalf("stop must move once the trigger is reached")
	}
	if tr.Levels.CurrentStop != tr.EntryPrice || !tr.Levels.StopMovedToBE {
		t.Fatalf("unexpected levels %+v", tr.Levels)
	}
	if RatchetBreakeven(tr, bar(at(4, 10, 10), 101.7, 102, 101.6, 101.9)) {
		t.Fatalf("stop must move at most once")
	}
}

func TestSlipIsAdverse(t *testing.T) {
	cases := []struct {
		dir   models.Direction
		entry bool
		want  float64
	}{
		{models.Long, true, 100.05},
		{models.Long, false, 99.95},
		{models.Short, true, 99.95},
		{models.Short, false, 100.05},
	}
	for _, tc := range cases {
		if got := Slip(100, 0.0005, tc.dir, tc.entry); !near(got, tc.want) {
			t.Fatalf("%s entry=%v: got %v want %v", tc.dir, tc.entry, got, tc.want)
		}
	}
}

func TestTierSharesTruncate(t *testing.T) {
	cases := []struct {
		n    int
		pct  float64
		want int
	}{
		{100, 0.5, 50},
		{100, 0.25, 25},
		{7, 0.5, 3},
		{100, 0.29, 28},
		{3, 0.25, 0},
	}
	for _, tc := range cases {
		if got := tierShares(tc.n, tc.pct); got != tc.want {
			t.Fatalf("tierShares(%d, %v) = %d, want %d", tc.n, tc.pct, got, tc.want)
		}
	}
}
