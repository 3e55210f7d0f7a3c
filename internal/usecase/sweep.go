package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	"OrbLab/internal/services/orb"
	"OrbLab/internal/services/performance"
	applogger "OrbLab/pkg/logger"
)

// DefaultGrid is the stock optimisation grid.
func DefaultGrid() map[string][]float64 {
	return map[string][]float64{
		"min_or_range_pct":        {0.0005, 0.001, 0.0015, 0.002},
		"volume_multiplier":       {1.0, 1.2, 1.5},
		"confirmation_bars":       {1, 2},
		"initial_stop_multiplier": {0.5, 0.75, 1.0},
	}
}

// DefaultMaxCombos bounds the grid size a single sweep may expand to.
const DefaultMaxCombos = 10000

// ComboCount returns the size of grid's cartesian product, stopping early
// with limit+1 once the product exceeds limit.
func ComboCount(grid map[string][]float64, limit int) int {
	n := 0
	for _, vs := range grid {
		if len(vs) == 0 {
			continue
		}
		if n == 0 {
			n = 1
		}
		n *= len(vs)
		if n > limit {
			return limit + 1
		}
	}
	return n
}

// Combinations expands grid into its cartesian product. Keys vary in sorted
// order with the last key changing fastest.
func Combinations(grid map[string][]float64) []map[string]float64 {
	keys := make([]string, 0, len(grid))
	for k, vs := range grid {
		if len(vs) > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	out := []map[string]float64{{}}
	for _, k := range keys {
		next := make([]map[string]float64, 0, len(out)*len(grid[k]))
		for _, combo := range out {
			for _, v := range grid[k] {
				c := make(map[string]float64, len(combo)+1)
				for ck, cv := range combo {
					c[ck] = cv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		out = next
	}
	return out
}

// SweepParams describes a grid search over one symbol.
type SweepParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Base      models.Params
	Grid      map[string][]float64
	Workers   int
	Top       int
}

// WalkForwardParams describes rolling train/test optimisation.
type WalkForwardParams struct {
	SweepParams
	TrainDays int
	TestDays  int
}

// SweepUseCase runs parameter grids. Bars are loaded and the indicator pass
// is computed once; every combination gets its own Params copy and engine.
type SweepUseCase struct {
	bars    domrepo.BarStore
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time

	maxCombos int
}

func NewSweepUseCase(bars domrepo.BarStore, metrics domrepo.Metrics, l *applogger.Logger) *SweepUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &SweepUseCase{bars: bars, metrics: metrics, l: l, now: time.Now, maxCombos: DefaultMaxCombos}
}

// SetMaxCombos caps the number of grid combinations; n <= 0 keeps the default.
func (uc *SweepUseCase) SetMaxCombos(n int) {
	if n > 0 {
		uc.maxCombos = n
	}
}

// Grid evaluates every combination and ranks them by Sharpe ratio, then by
// total return. Invalid combinations are reported, not fatal.
func (uc *SweepUseCase) Grid(ctx context.Context, p SweepParams) (*models.SweepResult, error) {
	start := time.Now()
	prep, err := uc.prepare(ctx, &p)
	if err != nil {
		return nil, err
	}
	entries, err := uc.evaluate(ctx, prep.Bars, prep.Sessions, p)
	if err != nil {
		return nil, err
	}
	res := &models.SweepResult{Symbol: p.Symbol, Combos: len(entries)}
	for _, e := range entries {
		if e.Error != "" {
			res.Rejected++
		}
	}
	Rank(entries)
	if p.Top > 0 && len(entries) > p.Top {
		entries = entries[:p.Top]
	}
	res.Entries = entries

	uc.metrics.RecordBacktest(p.Symbol, "sweep")
	uc.metrics.RecordLatency("sweep", time.Since(start).Seconds())
	uc.l.Info("sweep finished",
		applogger.String("symbol", p.Symbol),
		applogger.Int("combos", res.Combos),
		applogger.Int("rejected", res.Rejected),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return res, nil
}

// WalkForward optimises on TrainDays sessions, evaluates the winner on the
// next TestDays sessions and rolls forward by TestDays.
func (uc *SweepUseCase) WalkForward(ctx context.Context, p WalkForwardParams) (*models.WalkForwardResult, error) {
	if p.TrainDays < 1 || p.TestDays < 1 {
		return nil, &models.ConfigurationError{Field: "TrainDays/TestDays", Reason: "must be positive"}
	}
	start := time.Now()
	prep, err := uc.prepare(ctx, &p.SweepParams)
	if err != nil {
		return nil, err
	}
	n := len(prep.Sessions)
	if n < p.TrainDays+p.TestDays {
		return nil, &models.DataError{Reason: fmt.Sprintf("walk-forward needs %d sessions, have %d", p.TrainDays+p.TestDays, n)}
	}

	out := &models.WalkForwardResult{Symbol: p.Symbol}
	for lo := 0; lo+p.TrainDays+p.TestDays <= n; lo += p.TestDays {
		mid, hi := lo+p.TrainDays, lo+p.TrainDays+p.TestDays
		trainBars, trainSessions := orb.SliceSessions(prep.Bars, prep.Sessions, lo, mid)
		testBars, testSessions := orb.SliceSessions(prep.Bars, prep.Sessions, mid, hi)

		entries, err := uc.evaluate(ctx, trainBars, trainSessions, p.SweepParams)
		if err != nil {
			return nil, err
		}
		Rank(entries)
		w := models.WalkForwardWindow{
			TrainFrom: prep.Sessions[lo].Date,
			TrainTo:   prep.Sessions[mid-1].Date,
			TestFrom:  prep.Sessions[mid].Date,
			TestTo:    prep.Sessions[hi-1].Date,
		}
		if len(entries) == 0 || entries[0].Error != "" {
			uc.l.Warn("walk-forward window without a valid combination", applogger.String("train_from", w.TrainFrom))
			out.Windows = append(out.Windows, w)
			continue
		}
		w.Best, w.Train = entries[0].Values, entries[0].Metrics

		params, err := ApplyOverrides(p.Base, w.Best)
		if err != nil {
			return nil, err
		}
		m, err := uc.simulate(ctx, p.Symbol, testBars, testSessions, params)
		if err != nil {
			return nil, err
		}
		w.Test = m
		out.TotalTestPL += m.TotalPnL
		out.TestTrades += m.TotalTrades
		out.Windows = append(out.Windows, w)
	}
	out.GeneratedAt = uc.now()

	uc.metrics.RecordBacktest(p.Symbol, "walkforward")
	uc.metrics.RecordLatency("walkforward", time.Since(start).Seconds())
	uc.l.Info("walk-forward finished",
		applogger.String("symbol", p.Symbol),
		applogger.Int("windows", len(out.Windows)),
		applogger.Float64("test_pnl", out.TotalTestPL),
	)
	return out, nil
}

// Rank orders entries by Sharpe ratio descending, then total return.
// Rejected combinations sink to the end.
func Rank(entries []models.SweepEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.Error == "") != (b.Error == "") {
			return a.Error == ""
		}
		if a.Metrics.SharpeRatio != b.Metrics.SharpeRatio {
			return a.Metrics.SharpeRatio > b.Metrics.SharpeRatio
		}
		return a.Metrics.TotalReturnPct > b.Metrics.TotalReturnPct
	})
}

func (uc *SweepUseCase) prepare(ctx context.Context, p *SweepParams) (*orb.Prepared, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return nil, &models.ConfigurationError{Field: "Symbol", Reason: "required"}
	}
	if len(p.Grid) == 0 {
		p.Grid = DefaultGrid()
	}
	for k := range p.Grid {
		if _, err := p.Base.With(k, 0); err != nil {
			return nil, err
		}
	}
	if n := ComboCount(p.Grid, uc.maxCombos); n > uc.maxCombos {
		return nil, &models.ConfigurationError{
			Field:  "Grid",
			Reason: fmt.Sprintf("grid expands to more than %d combinations", uc.maxCombos),
		}
	}
	if p.Workers < 1 {
		p.Workers = 1
	}
	bars, err := uc.bars.GetBars(ctx, p.Symbol, p.From, p.To, domrepo.NormalizeTimeframe(string(p.Timeframe)))
	if err != nil {
		uc.metrics.RecordError("load")
		return nil, fmt.Errorf("load bars %s: %w", p.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, &models.DataError{Reason: "no bars for " + p.Symbol}
	}
	return orb.Prepare(bars, p.Base, uc.l)
}

// evaluate runs all combinations of p.Grid on a bounded worker pool. The
// returned slice keeps combination order.
func (uc *SweepUseCase) evaluate(ctx context.Context, bars []models.Bar, sessions []models.Session, p SweepParams) ([]models.SweepEntry, error) {
	combos := Combinations(p.Grid)
	entries := make([]models.SweepEntry, len(combos))
	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for w := 0; w < min(p.Workers, len(combos)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				e, err := uc.evaluateOne(ctx, p, bars, sessions, combos[i])
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}
				entries[i] = e
			}
		}()
	}
feed:
	for i := range combos {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sweep aborted: %w", err)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return entries, nil
}

func (uc *SweepUseCase) evaluateOne(ctx context.Context, p SweepParams, bars []models.Bar, sessions []models.Session, values map[string]float64) (models.SweepEntry, error) {
	e := models.SweepEntry{Values: values}
	params, err := ApplyOverrides(p.Base, values)
	if err == nil {
		err = params.Validate()
	}
	if err != nil {
		e.Error = err.Error()
		return e, nil
	}
	m, err := uc.simulate(ctx, p.Symbol, bars, sessions, params)
	if err != nil {
		if errorKind(err) == "config" {
			e.Error = err.Error()
			return e, nil
		}
		return e, err
	}
	e.Metrics = m
	return e, nil
}

func (uc *SweepUseCase) simulate(ctx context.Context, symbol string, bars []models.Bar, sessions []models.Session, params models.Params) (models.Metrics, error) {
	prep, err := orb.Reannotate(bars, sessions, params, applogger.Nop())
	if err != nil {
		return models.Metrics{}, err
	}
	out, err := orb.Simulate(ctx, symbol, prep, params, orb.WithIDGenerator(sequentialIDs()))
	if err != nil {
		return models.Metrics{}, err
	}
	r := out.Result
	return performance.Analyze(r.Trades, r.Equity, params.InitialCapital, r.FinalCash), nil
}

// sequentialIDs avoids a uuid per trade inside sweeps where ids are discarded.
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("t%d", n)
	}
}
