package indicators

import (
	"math"
	"testing"
	"time"

	"OrbLab/internal/domain/models"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTrueRangeUsesPreviousClose(t *testing.T) {
	bars := []models.Bar{
		{High: 10, Low: 9, Close: 9.5},
		{High: 12, Low: 11, Close: 11.5},
		{High: 11, Low: 8, Close: 9},
	}
	tr := TrueRange(bars)
	want := []float64{1, 2.5, 3.5}
	for i := range want {
		if !near(tr[i], want[i]) {
			t.Fatalf("tr[%d]=%v want %v", i, tr[i], want[i])
		}
	}
}

func TestRollingMeanWarmup(t *testing.T) {
	xs := present([]float64{1, 2, 3, 4})
	got := RollingMean(xs, 3)
	if got[0].Ok || got[1].Ok {
		t.Fatalf("expected warm-up entries to be absent")
	}
	if !got[2].Ok || !near(got[2].V, 2) {
		t.Fatalf("got[2]=%+v", got[2])
	}
	if !near(got[3].V, 3) {
		t.Fatalf("got[3]=%+v", got[3])
	}
}

func TestRollingMeanSkipsAbsentInputs(t *testing.T) {
	xs := []models.Opt{models.None(), models.Some(2), models.Some(4), models.Some(6)}
	got := RollingMean(xs, 2)
	if got[1].Ok {
		t.Fatalf("window containing an absent value must be absent")
	}
	if !got[2].Ok || !near(got[2].V, 3) || !near(got[3].V, 5) {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestEMASeededWithFirstValue(t *testing.T) {
	got := EMA([]float64{10, 20}, 3)
	if got[0] != 10 {
		t.Fatalf("seed %v", got[0])
	}
	if !near(got[1], 15) {
		t.Fatalf("ema %v", got[1])
	}
}

func TestApplyFillsColumnsAndPrevClose(t *testing.T) {
	day1 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	bars := []models.Bar{
		{Time: day1, Open: 10, High: 11, Low: 9, Close: 10, Volume: 100},
		{Time: day1.Add(time.Minute), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 300},
		{Time: day2, Open: 11, High: 12, Low: 10, Close: 11, Volume: 0},
	}
	sessions := []models.Session{{Date: "2024-03-04", Start: 0, End: 2}, {Date: "2024-03-05", Start: 2, End: 3}}
	Apply(bars, sessions, Periods{ATR: 1, ATRSMA: 2, VolumeSMA: 2, RelativeVolume: 2, EMAFast: 2, EMASlow: 3})

	if !bars[1].VolumeRatio.Ok || !near(bars[1].VolumeRatio.V, 1.5) {
		t.Fatalf("volume ratio %+v", bars[1].VolumeRatio)
	}
	if !bars[1].ATRSMA.Ok || !near(bars[1].ATRSMA.V, 2) {
		t.Fatalf("atr sma %+v", bars[1].ATRSMA)
	}
	if bars[0].PrevClose.Ok || bars[1].PrevClose.Ok {
		t.Fatalf("first session has no previous close")
	}
	if !bars[2].PrevClose.Ok || bars[2].PrevClose.V != 10.5 {
		t.Fatalf("prev close %+v", bars[2].PrevClose)
	}
	if !bars[0].EMAFast.Ok || !bars[2].EMASlow.Ok {
		t.Fatalf("ema columns should be present")
	}
}
