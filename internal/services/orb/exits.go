package orb

import (
	"math"

	"OrbLab/internal/domain/models"
)

// ExitOrder is the exit chosen for one bar. Price is before slippage;
// Shares == 0 closes the whole remainder.
type ExitOrder struct {
	Reason models.ExitReason
	Price  float64
	Shares int
}

// tierShares truncates n*pct with no rounding tolerance, so 100 shares at
// 0.29 give 28 (0.29*100 is just below 29 in binary).
func tierShares(n int, pct float64) int {
	return int(float64(n) * pct)
}

func reached(dir models.Direction, b models.Bar, level float64) bool {
	if dir == models.Short {
		return b.Low <= level
	}
	return b.High >= level
}

// EvaluateExit picks at most one exit for t on bar b. Priority: time stop,
// stop loss, then the tiered targets. A target tier only fires when the
// remaining shares match its guard:
//
//	target 3: remaining == floor(original*scale3)
//	target 2: remaining >  floor(original*scale3)
//	target 1: remaining == original
//
// Tiers are tried from 3 down to 1 and a tier whose slice floors to zero
// never fires.
func EvaluateExit(p models.Params, sch models.Schedule, t *models.Trade, b models.Bar) (ExitOrder, bool) {
	if models.ClockOf(b.Time, sch.Loc) >= sch.TimeStop {
		return ExitOrder{Reason: models.ExitTimeStop, Price: b.Close}, true
	}

	stop := t.Levels.CurrentStop
	if t.Direction == models.Long && b.Low <= stop {
		return ExitOrder{Reason: models.ExitStopLoss, Price: math.Min(stop, b.Open)}, true
	}
	if t.Direction == models.Short && b.High >= stop {
		return ExitOrder{Reason: models.ExitStopLoss, Price: math.Max(stop, b.Open)}, true
	}

	residual := tierShares(t.Shares, p.ScaleOut3Pct)
	lv := t.Levels
	if reached(t.Direction, b, lv.Target3) && residual > 0 && t.RemainingShares == residual {
		return ExitOrder{Reason: models.ExitTarget3, Price: lv.Target3}, true
	}
	if reached(t.Direction, b, lv.Target2) && t.RemainingShares > residual {
		if n := tierShares(t.Shares, p.ScaleOut2Pct); n > 0 {
			return ExitOrder{Reason: models.ExitTarget2, Price: lv.Target2, Shares: n}, true
		}
	}
	if reached(t.Direction, b, lv.Target1) && t.RemainingShares == t.Shares {
		if n := tierShares(t.Shares, p.ScaleOut1Pct); n > 0 {
			return ExitOrder{Reason: models.ExitTarget1, Price: lv.Target1, Shares: n}, true
		}
	}
	return ExitOrder{}, false
}

// RatchetBreakeven moves the stop to the entry price the first time the bar
// reaches the breakeven trigger. It never moves the stop back.
func RatchetBreakeven(t *models.Trade, b models.Bar) bool {
	if t.Levels.StopMovedToBE || t.State == models.TradeClosed {
		return false
	}
	if !reached(t.Direction, b, t.Levels.BreakevenTrigger) {
		return false
	}
	t.Levels.CurrentStop = t.EntryPrice
	t.Levels.StopMovedToBE = true
	return true
}

// Slip moves a fill price against the position: entries pay up, exits give up.
func Slip(price, pct float64, dir models.Direction, entry bool) float64 {
	adverse := dir.Sign()
	if !entry {
		adverse = -adverse
	}
	return price + adverse*price*pct
}
