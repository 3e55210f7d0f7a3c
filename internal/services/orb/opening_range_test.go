package orb

import (
	"errors"
	"testing"

	"OrbLab/internal/domain/models"
)

func TestPartitionSplitsByExchangeDate(t *testing.T) {
	bars := append(orDay(4), orDay(5)...)
	sessions, err := Partition(bars, ny)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Date != "2024-03-04" || sessions[0].Start != 0 || sessions[0].End != 3 {
		t.Fatalf("unexpected first session %+v", sessions[0])
	}
	if sessions[1].Start != 3 || sessions[1].End != 6 {
		t.Fatalf("unexpected second session %+v", sessions[1])
	}
}

func TestPartitionRejectsBadInput(t *testing.T) {
	dup := orDay(4)
	dup[1].Time = dup[0].Time
	backwards := orDay(4)
	backwards[2].Time = at(4, 9, 0)

	cases := map[string][]models.Bar{
		"empty":          nil,
		"duplicate":      dup,
		"unordered":      backwards,
		"no timestamp":   {{Open: 1, High: 1, Low: 1, Close: 1}},
		"high below low": {bar(at(4, 9, 30), 10, 9, 11, 10)},
	}
	for name, bars := range cases {
		_, err := Partition(bars, ny)
		var de *models.DataError
		if !errors.As(err, &de) {
			t.Fatalf("%s: expected DataError, got %v", name, err)
		}
	}
}

func TestOpeningRangeBroadcastsToWholeDay(t *testing.T) {
	p := models.DefaultParams()
	bars := append([]models.Bar{bar(at(4, 9, 0), 99, 120, 90, 100)}, orDay(4)...)
	bars = append(bars, bar(at(4, 9, 45), 100.6, 100.9, 100.5, 100.7))
	bars, _ = prepared(bars, p)

	for i, b := range bars {
		if !b.ORHigh.Ok || b.ORHigh.V != 101 || b.ORLow.V != 100 || b.ORRange.V != 1 || !b.ORValid {
			t.Fatalf("bar %d: unexpected OR fields %+v %+v %+v valid=%v", i, b.ORHigh, b.ORLow, b.ORRange, b.ORValid)
		}
	}
}

func TestOpeningRangeSkipsDays(t *testing.T) {
	p := models.DefaultParams()
	sch := testSchedule(p)

	late := []models.Bar{bar(at(4, 10, 0), 100, 101, 99, 100)}
	narrow := []models.Bar{
		bar(at(5, 9, 30), 100, 100.05, 100, 100.02),
		bar(at(5, 9, 35), 100.02, 100.1, 100.01, 100.05),
	}
	bars := append(late, narrow...)
	sessions, err := Partition(bars, ny)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	days, skips := OpeningRange(bars, sessions, p, sch)

	if len(days) != 1 || days[0].Valid {
		t.Fatalf("expected one invalid day, got %+v", days)
	}
	if len(skips) != 2 || skips[0].Reason != models.SkipNoORBars || skips[1].Reason != models.SkipInvalidOR {
		t.Fatalf("unexpected skips %+v", skips)
	}
	if bars[0].ORHigh.Ok {
		t.Fatalf("day without opening-range bars must keep OR fields absent")
	}
}

func TestOpeningRangeWindowIsHalfOpen(t *testing.T) {
	p := models.DefaultParams()
	bars := append(orDay(4), bar(at(4, 9, 45), 100.5, 130, 100.5, 101))
	bars, _ = prepared(bars, p)
	if bars[0].ORHigh.V != 101 {
		t.Fatalf("bar at the OR end must not be part of the range, got high %v", bars[0].ORHigh.V)
	}
}
