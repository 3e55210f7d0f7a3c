package orb

import (
	"math"

	"OrbLab/internal/domain/models"
	applogger "OrbLab/pkg/logger"
)

// Rejection names the entry filter that failed.
type Rejection string

const (
	Accepted          Rejection = ""
	RejectVolumeRatio Rejection = "volume_ratio"
	RejectRelVolume   Rejection = "relative_volume"
	RejectATR         Rejection = "atr_ratio"
	RejectGap         Rejection = "gap"
	RejectTrend       Rejection = "trend"
)

// SignalGenerator scans valid days for a confirmed, filtered breakout.
type SignalGenerator struct {
	p   models.Params
	sch models.Schedule
	l   *applogger.Logger
}

func NewSignalGenerator(p models.Params, sch models.Schedule, l *applogger.Logger) *SignalGenerator {
	if l == nil {
		l = applogger.Nop()
	}
	return &SignalGenerator{p: p, sch: sch, l: l}
}

// Generate marks LongSignal/ShortSignal on the confirming bar and returns the
// signals in chronological order. A day yields at most one signal: the first
// direction to confirm and pass validation wins and the scan of that day stops.
func (g *SignalGenerator) Generate(bars []models.Bar, sessions []models.Session) []models.Signal {
	var out []models.Signal
	for _, s := range sessions {
		for i := s.Start; i < s.End; i++ {
			bars[i].LongSignal, bars[i].ShortSignal, bars[i].SignalPrice = false, false, models.None()
		}
		if s.Len() == 0 || !bars[s.Start].ORValid {
			continue
		}
		if sig, ok := g.scanDay(bars, s); ok {
			out = append(out, sig)
		}
	}
	return out
}

func (g *SignalGenerator) scanDay(bars []models.Bar, s models.Session) (models.Signal, bool) {
	first := bars[s.Start]
	buffer := first.ORLow.V * g.p.BreakoutBufferPct
	longTrigger := first.ORHigh.V + buffer
	shortTrigger := first.ORLow.V - buffer
	dayOpen := g.dayOpen(bars, s)

	longCount, shortCount := 0, 0
	for i := s.Start; i < s.End; i++ {
		b := &bars[i]
		c := models.ClockOf(b.Time, g.sch.Loc)
		if c < g.sch.OREnd || c > g.sch.WindowEnd {
			continue
		}

		if b.Close > longTrigger {
			longCount++
		} else {
			longCount = 0
		}
		if b.Close < shortTrigger {
			shortCount++
		} else {
			shortCount = 0
		}

		if longCount >= g.p.ConfirmationBars {
			r := g.Validate(*b, models.Long, dayOpen)
			if r == Accepted {
				b.LongSignal = true
				b.SignalPrice = models.Some(b.Close)
				return models.Signal{Date: s.Date, Direction: models.Long, Time: b.Time, Price: b.Close, BarIndex: i}, true
			}
			g.l.Debug("long breakout rejected", applogger.String("date", s.Date), applogger.Time("bar", b.Time), applogger.String("filter", string(r)))
		}
		if shortCount >= g.p.ConfirmationBars {
			r := g.Validate(*b, models.Short, dayOpen)
			if r == Accepted {
				b.ShortSignal = true
				b.SignalPrice = models.Some(b.Close)
				return models.Signal{Date: s.Date, Direction: models.Short, Time: b.Time, Price: b.Close, BarIndex: i}, true
			}
			g.l.Debug("short breakout rejected", applogger.String("date", s.Date), applogger.Time("bar", b.Time), applogger.String("filter", string(r)))
		}
	}
	return models.Signal{}, false
}

// dayOpen is the open of the first regular-session bar, or of the first bar
// when the data has nothing at or after the market open.
func (g *SignalGenerator) dayOpen(bars []models.Bar, s models.Session) float64 {
	for i := s.Start; i < s.End; i++ {
		if models.ClockOf(bars[i].Time, g.sch.Loc) >= g.sch.MarketOpen {
			return bars[i].Open
		}
	}
	return bars[s.Start].Open
}

// Validate applies the entry filters to the confirming bar. Absent volume
// columns fail; a zero or absent ATR average skips the ATR ratio; the gap
// and trend checks only run when their inputs are present.
func (g *SignalGenerator) Validate(b models.Bar, dir models.Direction, dayOpen float64) Rejection {
	if !b.VolumeRatio.Ok || b.VolumeRatio.V < g.p.VolumeMultiplier {
		return RejectVolumeRatio
	}
	if !b.RelativeVolume.Ok || b.RelativeVolume.V < g.p.MinRelativeVolume {
		return RejectRelVolume
	}
	if b.ATRSMA.Ok && b.ATRSMA.V > 0 {
		if !b.ATR.Ok || b.ATR.V/b.ATRSMA.V < g.p.MinATRMultiplier {
			return RejectATR
		}
	}
	if b.PrevClose.Ok && b.PrevClose.V > 0 {
		if math.Abs(dayOpen-b.PrevClose.V)/b.PrevClose.V > g.p.MaxGapPct {
			return RejectGap
		}
	}
	if g.p.UseTrendFilter && b.EMAFast.Ok && b.EMASlow.Ok {
		if dir == models.Long && b.EMAFast.V < b.EMASlow.V {
			return RejectTrend
		}
		if dir == models.Short && b.EMAFast.V > b.EMASlow.V {
			return RejectTrend
		}
	}
	return Accepted
}
