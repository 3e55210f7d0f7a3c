package indicators

import (
	"math"

	"OrbLab/internal/domain/models"
)

// Periods configures the rolling windows.
type Periods struct {
	ATR            int
	ATRSMA         int
	VolumeSMA      int
	RelativeVolume int
	EMAFast        int
	EMASlow        int
}

// PeriodsFrom picks the indicator windows out of a parameter set.
func PeriodsFrom(p models.Params) Periods {
	return Periods{
		ATR:            p.ATRPeriod,
		ATRSMA:         p.ATRSMAPeriod,
		VolumeSMA:      p.VolumeSMAPeriod,
		RelativeVolume: p.RelativeVolumePeriod,
		EMAFast:        p.EMAFastPeriod,
		EMASlow:        p.EMASlowPeriod,
	}
}

// TrueRange computes max(H-L, |H-prevC|, |L-prevC|). The first bar uses H-L.
func TrueRange(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			pc := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

// RollingMean returns the trailing mean over window n; entries before the
// window fills, or that see an absent input, are absent.
func RollingMean(xs []models.Opt, n int) []models.Opt {
	out := make([]models.Opt, len(xs))
	if n <= 0 {
		return out
	}
	sum := 0.0
	valid := 0
	for i, x := range xs {
		if x.Ok {
			sum += x.V
			valid++
		}
		if i >= n {
			old := xs[i-n]
			if old.Ok {
				sum -= old.V
				valid--
			}
		}
		if i >= n-1 && valid == n {
			out[i] = models.Some(sum / float64(n))
		}
	}
	return out
}

// EMA is an exponential mean with alpha = 2/(n+1), seeded with the first value.
func EMA(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 || n <= 0 {
		return out
	}
	alpha := 2.0 / float64(n+1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

func present(xs []float64) []models.Opt {
	out := make([]models.Opt, len(xs))
	for i, x := range xs {
		out[i] = models.Some(x)
	}
	return out
}

func ratio(num float64, den models.Opt) models.Opt {
	if !den.Ok || den.V == 0 {
		return models.None()
	}
	return models.Some(num / den.V)
}

// Apply fills the derived columns of bars in place. sessions must come from
// the same slice; PrevClose is the last close of the preceding session.
func Apply(bars []models.Bar, sessions []models.Session, p Periods) {
	if len(bars) == 0 {
		return
	}

	atr := RollingMean(present(TrueRange(bars)), p.ATR)
	atrSMA := RollingMean(atr, p.ATRSMA)

	vols := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
		closes[i] = b.Close
	}
	volSMA := RollingMean(present(vols), p.VolumeSMA)
	relMean := RollingMean(present(vols), p.RelativeVolume)

	var fast, slow []float64
	if p.EMAFast > 0 && p.EMASlow > 0 {
		fast = EMA(closes, p.EMAFast)
		slow = EMA(closes, p.EMASlow)
	}

	for i := range bars {
		b := &bars[i]
		b.ATR = atr[i]
		b.ATRSMA = atrSMA[i]
		b.VolumeSMA = volSMA[i]
		b.VolumeRatio = ratio(b.Volume, volSMA[i])
		b.RelativeVolume = ratio(b.Volume, relMean[i])
		if fast != nil {
			b.EMAFast = models.Some(fast[i])
			b.EMASlow = models.Some(slow[i])
		}
	}

	for k := 1; k < len(sessions); k++ {
		prev := sessions[k-1]
		if prev.Len() == 0 {
			continue
		}
		pc := models.Some(bars[prev.End-1].Close)
		for i := sessions[k].Start; i < sessions[k].End; i++ {
			bars[i].PrevClose = pc
		}
	}
}
