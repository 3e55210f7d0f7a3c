package orb

import (
	"fmt"

	"OrbLab/internal/domain/models"
)

// OpeningRange computes the opening range of every session from the bars in
// [MarketOpen, MarketOpen+ORPeriod) and broadcasts it to all bars of that
// day. Days without opening-range bars keep absent OR fields and are
// reported as skips, as are days whose range is too narrow.
func OpeningRange(bars []models.Bar, sessions []models.Session, p models.Params, sch models.Schedule) ([]models.TradingDay, []models.SkipEvent) {
	days := make([]models.TradingDay, 0, len(sessions))
	var skips []models.SkipEvent

	for _, s := range sessions {
		hi, lo := 0.0, 0.0
		found := false
		for i := s.Start; i < s.End; i++ {
			b := &bars[i]
			b.ORHigh, b.ORLow, b.ORRange, b.ORValid = models.None(), models.None(), models.None(), false

			c := models.ClockOf(b.Time, sch.Loc)
			if c < sch.MarketOpen || c >= sch.OREnd {
				continue
			}
			if !found {
				hi, lo, found = b.High, b.Low, true
				continue
			}
			if b.High > hi {
				hi = b.High
			}
			if b.Low < lo {
				lo = b.Low
			}
		}
		if !found {
			skips = append(skips, models.SkipEvent{Date: s.Date, Time: bars[s.Start].Time, Reason: models.SkipNoORBars})
			continue
		}

		day := models.TradingDay{Date: s.Date, ORHigh: hi, ORLow: lo, ORRange: hi - lo}
		if lo > 0 {
			day.ORRangePct = day.ORRange / lo
		}
		day.Valid = lo > 0 && day.ORRangePct >= p.MinORRangePct
		if !day.Valid {
			skips = append(skips, models.SkipEvent{
				Date:   s.Date,
				Time:   bars[s.Start].Time,
				Reason: models.SkipInvalidOR,
				Detail: fmt.Sprintf("range %.4f%% below minimum %.4f%%", day.ORRangePct*100, p.MinORRangePct*100),
			})
		}
		for i := s.Start; i < s.End; i++ {
			bars[i].ORHigh = models.Some(day.ORHigh)
			bars[i].ORLow = models.Some(day.ORLow)
			bars[i].ORRange = models.Some(day.ORRange)
			bars[i].ORValid = day.Valid
		}
		days = append(days, day)
	}
	return days, skips
}
