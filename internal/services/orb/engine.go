package orb

import (
	"context"
	"fmt"

	"OrbLab/internal/domain/models"
	applogger "OrbLab/pkg/logger"

	"github.com/google/uuid"
)

// EntryKind tells an accepted entry from a skipped one.
type EntryKind int

const (
	EntryAccepted EntryKind = iota
	EntrySkipped
)

// EntryOutcome is the result of acting on a signal bar.
type EntryOutcome struct {
	Kind  EntryKind
	Trade *models.Trade
	Skip  models.SkipEvent
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *applogger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

// WithIDGenerator overrides trade id generation.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// Engine replays bars carrying precomputed signals. An Engine holds only the
// immutable parameters; all run state lives inside Run, so one Engine can
// serve many sequential or concurrent runs.
type Engine struct {
	p     models.Params
	sch   models.Schedule
	sizer *RiskSizer
	l     *applogger.Logger
	newID func() string
}

// NewEngine validates p and returns an engine bound to it.
func NewEngine(p models.Params, opts ...EngineOption) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	sch, err := p.Schedule()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		p:     p,
		sch:   sch,
		sizer: NewRiskSizer(p),
		l:     applogger.Nop(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Params() models.Params     { return e.p }
func (e *Engine) Schedule() models.Schedule { return e.sch }

// run is the mutable state of one replay.
type run struct {
	symbol   string
	cash     float64
	open     *models.Trade
	closed   []models.Trade
	equity   []models.EquitySample
	skips    []models.SkipEvent
	day      string
	dayPnL   float64
	lossHalt bool
}

// Run replays bars in order. For every bar it marks equity, evaluates exits
// and then, only when flat, acts on the bar's signal. A position still open
// after the last bar is closed at its Close with reason "End of data"; like
// every other exit that fill takes slippage and its proceeds are credited to
// cash, so the final cash and equity include the position.
func (e *Engine) Run(ctx context.Context, symbol string, bars []models.Bar) (*models.SimulationResult, error) {
	if err := ValidateBars(bars); err != nil {
		return nil, err
	}
	for i, b := range bars {
		if (b.LongSignal || b.ShortSignal) && (!b.ORRange.Ok || b.ORRange.V <= 0) {
			return nil, &models.DataError{Reason: "signal bar without opening range", Index: i, Time: b.Time}
		}
	}

	r := &run{
		symbol: symbol,
		cash:   e.p.InitialCapital,
		equity: make([]models.EquitySample, 0, len(bars)),
	}

	for i, b := range bars {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("replay aborted at bar %d: %w", i, err)
			}
		}
		e.rollDay(r, b)
		e.markEquity(r, b)
		e.checkExits(r, b)

		if r.open != nil {
			continue
		}
		var dir models.Direction
		switch {
		case b.LongSignal:
			dir = models.Long
		case b.ShortSignal:
			dir = models.Short
		default:
			continue
		}
		out := e.enter(r, b, dir)
		if out.Kind == EntrySkipped {
			r.skips = append(r.skips, out.Skip)
			e.l.Warn("entry skipped",
				applogger.String("symbol", symbol),
				applogger.String("date", out.Skip.Date),
				applogger.String("reason", string(out.Skip.Reason)),
				applogger.String("detail", out.Skip.Detail),
			)
		}
	}

	if r.open != nil {
		last := bars[len(bars)-1]
		e.fill(r, last, ExitOrder{Reason: models.ExitEndOfData, Price: last.Close})
	}

	e.l.Info("replay finished",
		applogger.String("symbol", symbol),
		applogger.Int("bars", len(bars)),
		applogger.Int("trades", len(r.closed)),
		applogger.Int("skips", len(r.skips)),
		applogger.Float64("cash", r.cash),
	)
	return &models.SimulationResult{
		Trades:    r.closed,
		Equity:    r.equity,
		Skips:     r.skips,
		FinalCash: r.cash,
	}, nil
}

func (e *Engine) rollDay(r *run, b models.Bar) {
	d := b.Time.In(e.sch.Loc).Format(dateLayout)
	if d != r.day {
		r.day, r.dayPnL, r.lossHalt = d, 0, false
	}
}

func (e *Engine) markEquity(r *run, b models.Bar) {
	s := models.EquitySample{Time: b.Time, Cash: r.cash}
	if r.open != nil {
		s.OpenPnL = r.open.UnrealizedPnL(b.Close)
		s.OpenPositions = 1
	}
	s.Equity = s.Cash + s.OpenPnL
	r.equity = append(r.equity, s)
}

func (e *Engine) checkExits(r *run, b models.Bar) {
	t := r.open
	if t == nil {
		return
	}
	order, ok := EvaluateExit(e.p, e.sch, t, b)
	if ok {
		e.fill(r, b, order)
		if order.Reason == models.ExitTimeStop || order.Reason == models.ExitStopLoss {
			return
		}
	}
	if r.open != nil && RatchetBreakeven(t, b) {
		e.l.Debug("stop moved to breakeven",
			applogger.String("trade", t.ID),
			applogger.Time("bar", b.Time),
			applogger.Float64("stop", t.Levels.CurrentStop),
		)
	}
}

// fill applies slippage, closes the slice and credits cash. Long proceeds
// are exit*shares; short proceeds release the reserved entry value plus the
// signed gain, (2*entry - exit)*shares.
func (e *Engine) fill(r *run, b models.Bar, o ExitOrder) {
	t := r.open
	price := Slip(o.Price, e.p.SlippagePct, t.Direction, false)
	state, slice, err := t.Close(b.Time, price, o.Reason, o.Shares, e.p.CommissionPerTrade)
	if err != nil {
		e.l.Error("close on closed trade", applogger.String("trade", t.ID), applogger.Error(err))
		r.open = nil
		return
	}

	n := float64(slice.Shares)
	if t.Direction == models.Long {
		r.cash += price * n
	} else {
		r.cash += (2*t.EntryPrice - price) * n
	}
	r.dayPnL += slice.PnL
	if e.p.MaxDailyLossPct > 0 && r.dayPnL <= -e.p.MaxDailyLossPct*e.p.InitialCapital {
		r.lossHalt = true
	}

	e.l.Debug("exit filled",
		applogger.String("trade", t.ID),
		applogger.String("reason", string(o.Reason)),
		applogger.Int("shares", slice.Shares),
		applogger.Float64("price", price),
		applogger.Float64("pnl", slice.PnL),
	)
	if state == models.TradeClosed {
		r.closed = append(r.closed, *t)
		r.open = nil
	}
}

func (e *Engine) enter(r *run, b models.Bar, dir models.Direction) EntryOutcome {
	date := b.Time.In(e.sch.Loc).Format(dateLayout)
	if r.lossHalt {
		return EntryOutcome{Kind: EntrySkipped, Skip: models.SkipEvent{
			Time: b.Time, Date: date, Reason: models.SkipDailyLossLimit,
			Detail: fmt.Sprintf("realized %.2f today", r.dayPnL),
		}}
	}

	orRange := b.ORRange.V
	lv := ComputeLevels(e.p, b.Close, orRange, dir)
	shares := e.sizer.Shares(r.cash, b.Close, lv.InitialStop, orRange, b.ATR)
	if shares <= 0 {
		return EntryOutcome{Kind: EntrySkipped, Skip: models.SkipEvent{
			Time: b.Time, Date: date, Reason: models.SkipZeroSize,
			Detail: fmt.Sprintf("%s at %.4f with stop %.4f and cash %.2f", dir, b.Close, lv.InitialStop, r.cash),
		}}
	}

	price := Slip(b.Close, e.p.SlippagePct, dir, true)
	t := models.NewTrade(e.newID(), r.symbol, dir, b.Time, price, shares, lv, orRange)
	r.cash -= price*float64(shares) + e.p.CommissionPerTrade
	r.open = t

	e.l.Debug("entry filled",
		applogger.String("trade", t.ID),
		applogger.String("direction", string(dir)),
		applogger.Int("shares", shares),
		applogger.Float64("price", price),
		applogger.Float64("stop", lv.InitialStop),
	)
	return EntryOutcome{Kind: EntryAccepted, Trade: t}
}
