package orb

import (
	"math"

	"OrbLab/internal/domain/models"
)

// RiskSizer turns entry context into a bounded share count using a
// fractional Kelly risk budget scaled by opening-range volatility.
type RiskSizer struct {
	p models.Params
}

func NewRiskSizer(p models.Params) *RiskSizer { return &RiskSizer{p: p} }

// Kelly returns max(0, (wr*wl - (1-wr)) / wl).
func Kelly(winRate, winLossRatio float64) float64 {
	if winLossRatio <= 0 {
		return 0
	}
	return math.Max(0, (winRate*winLossRatio-(1-winRate))/winLossRatio)
}

// VolatilityAdjustment scales risk by the OR range relative to ATR. An
// absent or zero ATR leaves risk unscaled.
func VolatilityAdjustment(orRange float64, atr models.Opt) float64 {
	if !atr.Ok || atr.V <= 0 {
		return 1
	}
	switch r := orRange / atr.V; {
	case r > 1.5:
		return 0.7
	case r < 0.5:
		return 0.5
	default:
		return 1
	}
}

// RiskFraction is the share of capital put at risk on one trade.
func (s *RiskSizer) RiskFraction(orRange float64, atr models.Opt) float64 {
	adjusted := Kelly(s.p.KellyWinRate, s.p.KellyWinLossRatio) * s.p.KellySafetyFactor
	return math.Min(adjusted, s.p.MaxRiskPerTradePct) * VolatilityAdjustment(orRange, atr)
}

// Shares sizes a position. Zero means the trade must be skipped.
func (s *RiskSizer) Shares(capital, entry, initialStop, orRange float64, atr models.Opt) int {
	dist := math.Abs(entry - initialStop)
	if dist <= 0 || entry <= 0 || capital <= 0 {
		return 0
	}
	shares := int(math.Floor(capital * s.RiskFraction(orRange, atr) / dist))

	maxShares := int(math.Floor(capital * s.p.MaxPositionSizePct / entry))
	minShares := int(math.Floor(capital * s.p.MinPositionSizePct / entry))
	if shares > maxShares {
		shares = maxShares
	}
	if shares < minShares {
		shares = minShares
	}
	if shares <= 0 {
		return 0
	}
	return shares
}
