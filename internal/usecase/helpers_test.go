package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
)

var ny, _ = time.LoadLocation("America/New_York")

func at(day, hh, mm int) time.Time {
	return time.Date(2024, time.March, day, hh, mm, 0, 0, ny)
}

func bar(t time.Time, o, h, l, c float64) models.Bar {
	return models.Bar{Time: t, Open: o, High: h, Low: l, Close: c, Volume: 1000}
}

// breakoutDay is a 100-101 opening range, a long breakout confirmed at 09:50
// and a last bar at the 15:55 time stop.
func breakoutDay(d int) []models.Bar {
	return []models.Bar{
		bar(at(d, 9, 30), 100.5, 101, 100.2, 100.8),
		bar(at(d, 9, 35), 100.8, 100.9, 100, 100.4),
		bar(at(d, 9, 40), 100.4, 100.7, 100.3, 100.6),
		bar(at(d, 9, 45), 100.9, 101.15, 100.9, 101.10),
		bar(at(d, 9, 50), 101.1, 101.25, 101.0, 101.20),
		bar(at(d, 9, 55), 101.2, 101.4, 101.1, 101.30),
		bar(at(d, 15, 55), 101.3, 101.4, 101.2, 101.30),
	}
}

func breakoutDays(days ...int) []models.Bar {
	var out []models.Bar
	for _, d := range days {
		out = append(out, breakoutDay(d)...)
	}
	return out
}

// testParams keeps the indicator warm-up short so the synthetic days trade.
func testParams() models.Params {
	p := models.DefaultParams()
	p.VolumeSMAPeriod = 3
	p.RelativeVolumePeriod = 3
	p.VolumeMultiplier = 1
	p.MinATRMultiplier = 0
	return p
}

type fakeBars struct {
	mu    sync.Mutex
	bars  map[string][]models.Bar
	calls int
	err   error
}

func newFakeBars(symbol string, bars []models.Bar) *fakeBars {
	return &fakeBars{bars: map[string][]models.Bar{symbol: bars}}
}

func (f *fakeBars) GetBars(_ context.Context, symbol string, _, _ time.Time, _ domrepo.Timeframe) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.bars[symbol]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return b, nil
}

func (f *fakeBars) Symbols(context.Context, domrepo.Timeframe) ([]string, error) {
	var out []string
	for s := range f.bars {
		out = append(out, s)
	}
	return out, nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	runs     map[string]int
	trades   int
	skips    map[string]int
	errs     map[string]int
	equity   float64
	latencies int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{runs: map[string]int{}, skips: map[string]int{}, errs: map[string]int{}}
}

func (m *fakeMetrics) RecordBacktest(_, status string) { m.mu.Lock(); m.runs[status]++; m.mu.Unlock() }
func (m *fakeMetrics) RecordTrade(string, string)      { m.mu.Lock(); m.trades++; m.mu.Unlock() }
func (m *fakeMetrics) RecordSkip(reason string)        { m.mu.Lock(); m.skips[reason]++; m.mu.Unlock() }
func (m *fakeMetrics) RecordFinalEquity(_ string, v float64) {
	m.mu.Lock()
	m.equity = v
	m.mu.Unlock()
}
func (m *fakeMetrics) RecordError(kind string)          { m.mu.Lock(); m.errs[kind]++; m.mu.Unlock() }
func (m *fakeMetrics) RecordLatency(string, float64)    { m.mu.Lock(); m.latencies++; m.mu.Unlock() }

type fakePublisher struct {
	mu        sync.Mutex
	published []*models.BacktestResult
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, r *models.BacktestResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, r)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

var errBroker = errors.New("broker down")
