package orb

import (
	"math"
	"time"

	"OrbLab/internal/domain/models"
)

var ny, _ = time.LoadLocation("America/New_York")

func at(day, hh, mm int) time.Time {
	return time.Date(2024, time.March, day, hh, mm, 0, 0, ny)
}

func bar(t time.Time, o, h, l, c float64) models.Bar {
	return models.Bar{Time: t, Open: o, High: h, Low: l, Close: c, Volume: 1000}
}

// liquid marks a bar as passing the volume filters.
func liquid(b models.Bar) models.Bar {
	b.VolumeRatio = models.Some(2)
	b.RelativeVolume = models.Some(2)
	return b
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func testSchedule(p models.Params) models.Schedule {
	sch, err := p.Schedule()
	if err != nil {
		panic(err)
	}
	return sch
}

// orDay returns an opening range of 100-101 on day d (three 5-minute bars).
func orDay(d int) []models.Bar {
	return []models.Bar{
		bar(at(d, 9, 30), 100.5, 101, 100.2, 100.8),
		bar(at(d, 9, 35), 100.8, 100.9, 100, 100.4),
		bar(at(d, 9, 40), 100.4, 100.7, 100.3, 100.6),
	}
}

func prepared(bars []models.Bar, p models.Params) ([]models.Bar, []models.Session) {
	sch := testSchedule(p)
	sessions, err := Partition(bars, sch.Loc)
	if err != nil {
		panic(err)
	}
	OpeningRange(bars, sessions, p, sch)
	return bars, sessions
}
