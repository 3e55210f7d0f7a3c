package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	"OrbLab/internal/services/orb"
	"OrbLab/internal/services/performance"
	"OrbLab/pkg/cache"
	applogger "OrbLab/pkg/logger"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned when an identical backtest is already running.
var ErrRunInProgress = errors.New("identical backtest already running")

// RunParams describes one backtest. Params must be complete; callers start
// from BacktestUseCase.Defaults.
type RunParams struct {
	RunID     string
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Params    models.Params
}

// BacktestUseCase runs the full pipeline for one symbol: load bars,
// indicators, opening range, signals, replay, metrics and report. Sinks are
// best effort: a store or publish failure is logged and counted but the
// result is still returned.
type BacktestUseCase struct {
	bars     domrepo.BarStore
	results  domrepo.ResultStore
	pub      domrepo.ResultPublisher
	cache    cache.Service
	metrics  domrepo.Metrics
	base     models.Params
	l        *applogger.Logger
	lockTTL  time.Duration
	cacheTTL time.Duration
	now      func() time.Time
	newID    func() string
}

func NewBacktestUseCase(
	bars domrepo.BarStore,
	results domrepo.ResultStore,
	pub domrepo.ResultPublisher,
	c cache.Service,
	metrics domrepo.Metrics,
	base models.Params,
	l *applogger.Logger,
) *BacktestUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &BacktestUseCase{
		bars:     bars,
		results:  results,
		pub:      pub,
		cache:    c,
		metrics:  metrics,
		base:     base,
		l:        l,
		lockTTL:  10 * time.Minute,
		cacheTTL: 24 * time.Hour,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Defaults returns the configured base parameter set.
func (uc *BacktestUseCase) Defaults() models.Params { return uc.base }

// SetClock overrides time and id sources.
func (uc *BacktestUseCase) SetClock(now func() time.Time, newID func() string) {
	if now != nil {
		uc.now = now
	}
	if newID != nil {
		uc.newID = newID
	}
}

// SetTTLs overrides how long a run lock and a fingerprint entry live.
func (uc *BacktestUseCase) SetTTLs(lock, fingerprint time.Duration) {
	if lock > 0 {
		uc.lockTTL = lock
	}
	if fingerprint > 0 {
		uc.cacheTTL = fingerprint
	}
}

// Fingerprint identifies a request by symbol, range, timeframe and parameters.
func Fingerprint(p RunParams) string {
	payload, _ := json.Marshal(struct {
		Symbol string
		From   int64
		To     int64
		TF     domrepo.Timeframe
		Params models.Params
	}{p.Symbol, p.From.UnixNano(), p.To.UnixNano(), p.Timeframe, p.Params})
	return cache.HashKey(string(payload))
}

func fingerprintKey(fp string) string { return cache.GenerateKey("orb:fp", fp) }
func lockKey(fp string) string        { return cache.GenerateKey("orb:lock", fp) }

// Run executes one backtest. An identical request that already finished
// is answered from the result store.
func (uc *BacktestUseCase) Run(ctx context.Context, p RunParams) (*models.BacktestResult, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return nil, &models.ConfigurationError{Field: "Symbol", Reason: "required"}
	}
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		p.Timeframe = domrepo.NormalizeTimeframe(string(p.Timeframe))
	}
	if err := p.Params.Validate(); err != nil {
		uc.fail(p.Symbol, "config")
		return nil, err
	}

	fp := Fingerprint(p)
	if r, ok := uc.cached(ctx, fp); ok {
		uc.metrics.RecordBacktest(p.Symbol, "cached")
		if p.RunID != "" && r.RunID != p.RunID {
			// async callers poll by the id they were handed
			cp := *r
			cp.RunID = p.RunID
			uc.persist(ctx, &cp)
			return &cp, nil
		}
		return r, nil
	}
	if uc.cache != nil {
		ok, err := uc.cache.TryLock(ctx, lockKey(fp), uc.lockTTL)
		if err != nil {
			uc.l.Warn("run lock unavailable", applogger.String("symbol", p.Symbol), applogger.Error(err))
		} else if !ok {
			uc.metrics.RecordBacktest(p.Symbol, "conflict")
			return nil, ErrRunInProgress
		} else {
			defer func() { _ = uc.cache.Unlock(context.WithoutCancel(ctx), lockKey(fp)) }()
		}
	}

	res, err := uc.execute(ctx, p)
	if err != nil {
		return nil, err
	}
	uc.persist(ctx, res)
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, fingerprintKey(fp), res.RunID, uc.cacheTTL); err != nil {
			uc.l.Warn("fingerprint cache set failed", applogger.String("run_id", res.RunID), applogger.Error(err))
		}
	}
	return res, nil
}

// Get returns a stored run.
func (uc *BacktestUseCase) Get(ctx context.Context, runID string) (*models.BacktestResult, error) {
	return uc.results.Get(ctx, runID)
}

// Health reports whether the result store is reachable.
func (uc *BacktestUseCase) Health(ctx context.Context) error {
	if uc.results == nil {
		return nil
	}
	return uc.results.Health(ctx)
}

func (uc *BacktestUseCase) cached(ctx context.Context, fp string) (*models.BacktestResult, bool) {
	if uc.cache == nil {
		return nil, false
	}
	var runID string
	if err := uc.cache.Get(ctx, fingerprintKey(fp), &runID); err != nil || runID == "" {
		return nil, false
	}
	r, err := uc.results.Get(ctx, runID)
	if err != nil {
		return nil, false
	}
	return r, true
}

func (uc *BacktestUseCase) execute(ctx context.Context, p RunParams) (*models.BacktestResult, error) {
	started := uc.now()
	loadStart := time.Now()
	bars, err := uc.bars.GetBars(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	uc.metrics.RecordLatency("load_bars", time.Since(loadStart).Seconds())
	if err != nil {
		uc.fail(p.Symbol, "load")
		return nil, fmt.Errorf("load bars %s: %w", p.Symbol, err)
	}
	if len(bars) == 0 {
		uc.fail(p.Symbol, "data")
		return nil, &models.DataError{Reason: fmt.Sprintf("no %s bars for %s in range", p.Timeframe, p.Symbol)}
	}

	runID := p.RunID
	if runID == "" {
		runID = uc.newID()
	}
	l := uc.l.With(applogger.String("run_id", runID), applogger.String("symbol", p.Symbol))

	simStart := time.Now()
	prep, err := orb.Prepare(bars, p.Params, l)
	if err != nil {
		uc.fail(p.Symbol, errorKind(err))
		return nil, err
	}
	out, err := orb.Simulate(ctx, p.Symbol, prep, p.Params, orb.WithLogger(l), orb.WithIDGenerator(uc.newID))
	if err != nil {
		uc.fail(p.Symbol, errorKind(err))
		return nil, err
	}
	uc.metrics.RecordLatency("simulate", time.Since(simStart).Seconds())

	sim := out.Result
	m := performance.Analyze(sim.Trades, sim.Equity, p.Params.InitialCapital, sim.FinalCash)
	finished := uc.now()
	res := &models.BacktestResult{
		RunID:      runID,
		Symbol:     p.Symbol,
		Timeframe:  string(p.Timeframe),
		From:       bars[0].Time,
		To:         bars[len(bars)-1].Time,
		Bars:       len(bars),
		Params:     p.Params,
		Days:       out.Days,
		Signals:    out.Signals,
		Trades:     sim.Trades,
		Equity:     sim.Equity,
		Skips:      append(append([]models.SkipEvent(nil), out.Skips...), sim.Skips...),
		Metrics:    m,
		Report:     performance.Report(m, p.Symbol, finished),
		StartedAt:  started,
		FinishedAt: finished,
	}
	uc.record(res)
	l.Info("backtest finished",
		applogger.Int("bars", res.Bars),
		applogger.Int("trades", m.TotalTrades),
		applogger.Float64("total_pnl", m.TotalPnL),
		applogger.Float64("sharpe", m.SharpeRatio),
		applogger.Duration("duration_ms", finished.Sub(started)),
	)
	return res, nil
}

func (uc *BacktestUseCase) record(r *models.BacktestResult) {
	uc.metrics.RecordBacktest(r.Symbol, "ok")
	for _, t := range r.Trades {
		uc.metrics.RecordTrade(string(t.Direction), string(t.ExitReason))
	}
	for _, s := range r.Skips {
		uc.metrics.RecordSkip(string(s.Reason))
	}
	uc.metrics.RecordFinalEquity(r.Symbol, r.Metrics.FinalCapital)
}

func (uc *BacktestUseCase) persist(ctx context.Context, r *models.BacktestResult) {
	ctx = context.WithoutCancel(ctx)
	if uc.results != nil {
		start := time.Now()
		if err := uc.results.Save(ctx, r); err != nil {
			uc.metrics.RecordError("result_store")
			uc.l.Error("result store save failed", applogger.String("run_id", r.RunID), applogger.Error(err))
		}
		uc.metrics.RecordLatency("save_result", time.Since(start).Seconds())
	}
	if uc.pub != nil {
		if err := uc.pub.Publish(ctx, r); err != nil {
			uc.metrics.RecordError("result_publish")
			uc.l.Error("result publish failed", applogger.String("run_id", r.RunID), applogger.Error(err))
		}
	}
}

func (uc *BacktestUseCase) fail(symbol, kind string) {
	uc.metrics.RecordBacktest(symbol, "error")
	uc.metrics.RecordError(kind)
}

func errorKind(err error) string {
	var cfgErr *models.ConfigurationError
	var dataErr *models.DataError
	switch {
	case errors.As(err, &cfgErr):
		return "config"
	case errors.As(err, &dataErr):
		return "data"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
