package orb

import (
	"context"

	"OrbLab/internal/domain/models"
	"OrbLab/internal/services/indicators"
	applogger "OrbLab/pkg/logger"
)

// Prepared holds the per-day stages computed ahead of the replay.
type Prepared struct {
	Bars     []models.Bar
	Sessions []models.Session
	Days     []models.TradingDay
	Signals  []models.Signal
	Skips    []models.SkipEvent
}

// Outcome is a full replay: prepared stages plus the simulation.
type Outcome struct {
	Prepared
	Result *models.SimulationResult
}

// Prepare validates p, copies bars, partitions them into sessions and runs
// the indicator, opening-range and signal stages.
func Prepare(bars []models.Bar, p models.Params, l *applogger.Logger) (*Prepared, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	sch, err := p.Schedule()
	if err != nil {
		return nil, err
	}
	own := make([]models.Bar, len(bars))
	copy(own, bars)

	sessions, err := Partition(own, sch.Loc)
	if err != nil {
		return nil, err
	}
	indicators.Apply(own, sessions, indicators.PeriodsFrom(p))
	return annotate(own, sessions, p, sch, l), nil
}

// Reannotate reruns the parameter-dependent stages on bars whose indicator
// columns are already filled. bars is copied; the input is left untouched so
// sweeps can share one indicator pass.
func Reannotate(bars []models.Bar, sessions []models.Session, p models.Params, l *applogger.Logger) (*Prepared, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	sch, err := p.Schedule()
	if err != nil {
		return nil, err
	}
	own := make([]models.Bar, len(bars))
	copy(own, bars)
	return annotate(own, sessions, p, sch, l), nil
}

func annotate(bars []models.Bar, sessions []models.Session, p models.Params, sch models.Schedule, l *applogger.Logger) *Prepared {
	if l == nil {
		l = applogger.Nop()
	}
	days, skips := OpeningRange(bars, sessions, p, sch)
	for _, s := range skips {
		l.Warn("day skipped", applogger.String("date", s.Date), applogger.String("reason", string(s.Reason)), applogger.String("detail", s.Detail))
	}
	signals := NewSignalGenerator(p, sch, l).Generate(bars, sessions)
	return &Prepared{Bars: bars, Sessions: sessions, Days: days, Signals: signals, Skips: skips}
}

// Simulate runs the engine over prepared bars.
func Simulate(ctx context.Context, symbol string, prep *Prepared, p models.Params, opts ...EngineOption) (*Outcome, error) {
	eng, err := NewEngine(p, opts...)
	if err != nil {
		return nil, err
	}
	res, err := eng.Run(ctx, symbol, prep.Bars)
	if err != nil {
		return nil, err
	}
	return &Outcome{Prepared: *prep, Result: res}, nil
}
