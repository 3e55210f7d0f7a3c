package orb

import (
	"testing"

	"OrbLab/internal/domain/models"
)

func generate(bars []models.Bar, p models.Params) ([]models.Bar, []models.Signal) {
	bars, sessions := prepared(bars, p)
	sigs := NewSignalGenerator(p, testSchedule(p), nil).Generate(bars, sessions)
	return bars, sigs
}

func TestLongBreakoutConfirmedOnSecondBar(t *testing.T) {
	p := models.DefaultParams()
	bars := append(orDay(4),
		liquid(bar(at(4, 9, 45), 100.9, 101.15, 100.9, 101.10)),
		liquid(bar(at(4, 9, 50), 101.1, 101.25, 101.0, 101.20)),
		liquid(bar(at(4, 9, 55), 101.2, 101.4, 101.1, 101.30)),
	)
	bars, sigs := generate(bars, p)

	if len(sigs) != 1 {
		t.Fatalf("expected one signal, got %d", len(sigs))
	}
	s := sigs[0]
	if s.Direction != models.Long || !s.Time.Equal(at(4, 9, 50)) || s.Price != 101.20 {
		t.Fatalf("unexpected signal %+v", s)
	}
	if !bars[4].LongSignal || bars[4].SignalPrice.V != 101.20 {
		t.Fatalf("confirming bar not marked: %+v", bars[4])
	}
	if bars[3].LongSignal || bars[5].LongSignal {
		t.Fatalf("only the confirming bar carries the signal")
	}
}

func TestFlatDayYieldsNoSignal(t *testing.T) {
	p := models.DefaultParams()
	bars := orDay(4)
	for m := 45; m < 60; m += 5 {
		bars = append(bars, liquid(bar(at(4, 9, m), 100.5, 100.9, 100.1, 100.5)))
	}
	_, sigs := generate(bars, p)
	if len(sigs) != 0 {
		t.Fatalf("expected no signals, got %+v", sigs)
	}
}

func TestFirstConfirmedDirectionWinsTheDay(t *testing.T) {
	p := models.DefaultParams()
	bars := append(orDay(4),
		liquid(bar(at(4, 9, 45), 100, 100, 99.8, 99.9)),
		liquid(bar(at(4, 9, 50), 99.9, 99.9, 99.7, 99.8)),
		liquid(bar(at(4, 10, 0), 101, 101.5, 101, 101.4)),
		liquid(bar(at(4, 10, 5), 101.4, 101.6, 101.3, 101.5)),
	)
	_, sigs := generate(bars, p)
	if len(sigs) != 1 || sigs[0].Direction != models.Short || !sigs[0].Time.Equal(at(4, 9, 50)) {
		t.Fatalf("expected a single short signal at 09:50, got %+v", sigs)
	}
}

func TestRejectedConfirmationKeepsCounting(t *testing.T) {
	p := models.DefaultParams()
	thin := bar(at(4, 9, 50), 101.1, 101.25, 101.0, 101.20)
	thin.VolumeRatio = models.Some(1.0)
	thin.RelativeVolume = models.Some(2)
	bars := append(orDay(4),
		liquid(bar(at(4, 9, 45), 100.9, 101.15, 100.9, 101.10)),
		thin,
		liquid(bar(at(4, 9, 55), 101.2, 101.4, 101.1, 101.30)),
	)
	_, sigs := generate(bars, p)
	if len(sigs) != 1 || !sigs[0].Time.Equal(at(4, 9, 55)) {
		t.Fatalf("expected the signal to move to the next confirming bar, got %+v", sigs)
	}
}

func TestCounterResetsWhenCloseFallsBack(t *testing.T) {
	p := models.DefaultParams()
	bars := append(orDay(4),
		liquid(bar(at(4, 9, 45), 100.9, 101.15, 100.9, 101.10)),
		liquid(bar(at(4, 9, 50), 101.1, 101.1, 100.8, 100.90)),
		liquid(bar(at(4, 9, 55), 100.9, 101.15, 100.9, 101.10)),
	)
	_, sigs := generate(bars, p)
	if len(sigs) != 0 {
		t.Fatalf("non-consecutive breakouts must not confirm, got %+v", sigs)
	}
}

func TestNoSignalsAfterTradingWindow(t *testing.T) {
	p := models.DefaultParams()
	bars := append(orDay(4),
		liquid(bar(at(4, 15, 35), 100.9, 101.15, 100.9, 101.10)),
		liquid(bar(at(4, 15, 40), 101.1, 101.25, 101.0, 101.20)),
	)
	_, sigs := generate(bars, p)
	if len(sigs) != 0 {
		t.Fatalf("expected no signals after the window end, got %+v", sigs)
	}
}

func TestValidateFilters(t *testing.T) {
	p := models.DefaultParams()
	p.UseTrendFilter = true
	g := NewSignalGenerator(p, testSchedule(p), nil)
	base := liquid(bar(at(4, 10, 0), 101, 101.5, 101, 101.4))

	cases := []struct {
		name    string
		mutate  func(b *models.Bar)
		dir     models.Direction
		dayOpen float64
		want    Rejection
	}{
		{"passes", func(b *models.Bar) {}, models.Long, 100.5, Accepted},
		{"volume ratio absent", func(b *models.Bar) { b.VolumeRatio = models.None() }, models.Long, 100.5, RejectVolumeRatio},
		{"relative volume low", func(b *models.Bar) { b.RelativeVolume = models.Some(0.9) }, models.Long, 100.5, RejectRelVolume},
		{"atr ratio low", func(b *models.Bar) { b.ATR = models.Some(0.1); b.ATRSMA = models.Some(1) }, models.Long, 100.5, RejectATR},
		{"zero atr rejected", func(b *models.Bar) { b.ATR = models.Some(0); b.ATRSMA = models.Some(1) }, models.Long, 100.5, RejectATR},
		{"zero atr average skips ratio", func(b *models.Bar) { b.ATR = models.Some(0); b.ATRSMA = models.Some(0) }, models.Long, 100.5, Accepted},
		{"gap too wide", func(b *models.Bar) { b.PrevClose = models.Some(98) }, models.Long, 100.5, RejectGap},
		{"gap within limit", func(b *models.Bar) { b.PrevClose = models.Some(100) }, models.Long, 100.5, Accepted},
		{"trend against long", func(b *models.Bar) { b.EMAFast = models.Some(99); b.EMASlow = models.Some(100) }, models.Long, 100.5, RejectTrend},
		{"trend against short", func(b *models.Bar) { b.EMAFast = models.Some(101); b.EMASlow = models.Some(100) }, models.Short, 100.5, RejectTrend},
		{"trend with short", func(b *models.Bar) { b.EMAFast = models.Some(99); b.EMASlow = models.Some(100) }, models.Short, 100.5, Accepted},
	}
	for _, tc := range cases {
		b := base
		tc.mutate(&b)
		if got := g.Validate(b, tc.dir, tc.dayOpen); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}
