package performance

import (
	"math"

	"OrbLab/internal/domain/models"
)

// TradingDaysPerYear annualizes the Sharpe ratio.
const TradingDaysPerYear = 252

// Analyze aggregates closed trades and the equity curve of one run. Total
// return is measured on final cash against the initial capital.
func Analyze(trades []models.Trade, equity []models.EquitySample, initialCapital, finalCash float64) models.Metrics {
	m := models.Metrics{
		TotalTrades:    len(trades),
		InitialCapital: initialCapital,
		FinalCapital:   finalCash,
		ExitReasons:    map[models.ExitReason]int{},
	}
	if initialCapital > 0 {
		m.TotalReturnPct = (finalCash - initialCapital) / initialCapital * 100
	}

	var sumWin, sumLoss, sumR, sumHold, sumOR float64
	for _, t := range trades {
		m.TotalPnL += t.PnL
		m.ExitReasons[t.ExitReason]++
		sumR += t.RMultiple
		sumHold += t.HoldingHours
		sumOR += t.ORRange
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			sumWin += t.PnL
			m.LargestWin = math.Max(m.LargestWin, t.PnL)
		case t.PnL < 0:
			m.LosingTrades++
			sumLoss += -t.PnL
			m.LargestLoss = math.Max(m.LargestLoss, -t.PnL)
		}
	}
	if n := float64(len(trades)); n > 0 {
		m.WinRate = float64(m.WinningTrades) / n
		m.AvgRMultiple = sumR / n
		m.AvgHoldingHours = sumHold / n
		m.AvgORRange = sumOR / n
	}
	if m.WinningTrades > 0 {
		m.AvgWin = sumWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = sumLoss / float64(m.LosingTrades)
	}
	if sumLoss > 0 {
		m.ProfitFactor = sumWin / sumLoss
	}

	m.SharpeRatio = Sharpe(Returns(equity))
	m.MaxDrawdown = MaxDrawdown(equity)
	m.MaxDrawdownPct = math.Abs(m.MaxDrawdown) * 100
	return m
}

// Returns is the bar-to-bar percent change of equity. A sample whose
// predecessor has zero equity contributes nothing.
func Returns(equity []models.EquitySample) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		out = append(out, (equity[i].Equity-prev)/prev)
	}
	return out
}

// Sharpe is mean/std*sqrt(252) with the sample standard deviation; zero when
// there are fewer than two returns or no variance.
func Sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	ss := 0.0
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown returns min((equity - running max) / running max), a value <= 0.
func MaxDrawdown(equity []models.EquitySample) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, s := range equity {
		if s.Equity > peak {
			peak = s.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (s.Equity - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}
