package orb

import (
	"math"
	"time"

	"OrbLab/internal/domain/models"
)

const dateLayout = "2006-01-02"

// ValidateBars rejects input the replay cannot use: empty series, missing
// timestamps, broken OHLC values and timestamps that are not strictly
// increasing. Bars are never re-sorted.
func ValidateBars(bars []models.Bar) error {
	if len(bars) == 0 {
		return &models.DataError{Reason: "no bars"}
	}
	for i, b := range bars {
		if b.Time.IsZero() {
			return &models.DataError{Reason: "bar without timestamp", Index: i}
		}
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return &models.DataError{Reason: "non-positive or missing price", Index: i, Time: b.Time}
			}
		}
		if b.High < b.Low {
			return &models.DataError{Reason: "high below low", Index: i, Time: b.Time}
		}
		if math.IsNaN(b.Volume) || b.Volume < 0 {
			return &models.DataError{Reason: "negative or missing volume", Index: i, Time: b.Time}
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1].Time
		switch {
		case b.Time.Equal(prev):
			return &models.DataError{Reason: "duplicate timestamp", Index: i, Time: b.Time}
		case b.Time.Before(prev):
			return &models.DataError{Reason: "timestamps not in chronological order", Index: i, Time: b.Time}
		}
	}
	return nil
}

// Partition validates bars and splits them into per-day index ranges using
// the calendar date in loc. It is done once per run; later stages only walk
// the ranges.
func Partition(bars []models.Bar, loc *time.Location) ([]models.Session, error) {
	if err := ValidateBars(bars); err != nil {
		return nil, err
	}
	sessions := make([]models.Session, 0, len(bars)/300+1)
	cur := models.Session{Date: bars[0].Time.In(loc).Format(dateLayout), Start: 0}
	for i := 1; i < len(bars); i++ {
		d := bars[i].Time.In(loc).Format(dateLayout)
		if d != cur.Date {
			cur.End = i
			sessions = append(sessions, cur)
			cur = models.Session{Date: d, Start: i}
		}
	}
	cur.End = len(bars)
	return append(sessions, cur), nil
}

// SliceSessions returns the bars covered by sessions[from:to] with the
// ranges rebased onto the returned slice. Used by walk-forward windows.
func SliceSessions(bars []models.Bar, sessions []models.Session, from, to int) ([]models.Bar, []models.Session) {
	if from < 0 {
		from = 0
	}
	if to > len(sessions) {
		to = len(sessions)
	}
	if from >= to {
		return nil, nil
	}
	base := sessions[from].Start
	out := make([]models.Bar, sessions[to-1].End-base)
	copy(out, bars[base:sessions[to-1].End])
	rebased := make([]models.Session, 0, to-from)
	for _, s := range sessions[from:to] {
		rebased = append(rebased, models.Session{Date: s.Date, Start: s.Start - base, End: s.End - base})
	}
	return out, rebased
}
