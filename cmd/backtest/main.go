package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"OrbLab/internal/di"
	"OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	"OrbLab/internal/repository"
	"OrbLab/internal/usecase"
	"OrbLab/pkg/cache"
	"OrbLab/pkg/config"
	applogger "OrbLab/pkg/logger"
	"OrbLab/pkg/metrics"
	"OrbLab/pkg/util"
)

type options struct {
	configPath  string
	symbols     []string
	from, to    string
	tf          string
	out         string
	sweep       bool
	walkForward bool
	workers     int
}

func main() {
	var o options
	var symbols string
	flag.StringVar(&o.configPath, "config", "config/config.yaml", "config file path")
	flag.StringVar(&symbols, "symbol", "SPY", "symbol or comma separated symbols")
	flag.StringVar(&o.from, "from", "", "first day (YYYY-MM-DD or RFC3339)")
	flag.StringVar(&o.to, "to", "", "last day (YYYY-MM-DD or RFC3339)")
	flag.StringVar(&o.tf, "tf", "", "bar timeframe: 1m or 5m (default from config)")
	flag.StringVar(&o.out, "out", "results", "output directory")
	flag.BoolVar(&o.sweep, "sweep", false, "run the default parameter grid")
	flag.BoolVar(&o.walkForward, "walkforward", false, "run walk-forward optimisation")
	flag.IntVar(&o.workers, "workers", 0, "sweep workers (default from config)")
	flag.Parse()
	o.symbols = util.SplitList(symbols)

	cfg, err := config.LoadWithEnv(o.configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if o.tf == "" {
		o.tf = cfg.Data.Timeframe
	}
	if o.workers <= 0 {
		o.workers = cfg.Sweep.Workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, o); err != nil {
		log.Printf("backtest failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, o options) error {
	if len(o.symbols) == 0 {
		return fmt.Errorf("no symbol given")
	}
	l, err := di.ProvideLogger(cfg)
	if err != nil {
		return err
	}
	ch, closeCH, err := di.ProvideClickHouseClient(cfg, l)
	if err != nil {
		return err
	}
	defer closeCH()
	bars, err := di.ProvideBarStore(cfg, ch, l)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	switch {
	case o.walkForward:
		return runWalkForward(ctx, cfg, o, bars, l)
	case o.sweep:
		return runSweep(ctx, cfg, o, bars, l)
	default:
		return runBacktests(ctx, cfg, o, bars, l)
	}
}

func runBacktests(ctx context.Context, cfg *config.Config, o options, bars domrepo.BarStore, l *applogger.Logger) error {
	c := cache.NewMemoryCache()
	defer c.Close()
	uc := usecase.NewBacktestUseCase(bars, repository.NewMemoryResultStore(), repository.NoopPublisher{}, c, metrics.Noop{}, cfg.Strategy, l)

	p, err := usecase.RunParamsFrom(models.RunRequest{From: o.from, To: o.to, TF: o.tf}, cfg.Strategy)
	if err != nil {
		return err
	}

	if len(o.symbols) > 1 {
		outcomes := uc.MultiSymbol(ctx, o.symbols, p, o.workers)
		for _, oc := range outcomes {
			if oc.Error != "" {
				l.Warn("symbol failed", applogger.String("symbol", oc.Symbol), applogger.String("error", oc.Error))
				continue
			}
			res, err := uc.Get(ctx, oc.RunID)
			if err != nil {
				return err
			}
			if err := writeRun(filepath.Join(o.out, oc.Symbol), res); err != nil {
				return err
			}
		}
		return writeJSON(filepath.Join(o.out, "summary.json"), outcomes)
	}

	p.Symbol = o.symbols[0]
	res, err := uc.Run(ctx, p)
	if err != nil {
		return err
	}
	if err := writeRun(o.out, res); err != nil {
		return err
	}
	fmt.Println(res.Report)
	return nil
}

func runSweep(ctx context.Context, cfg *config.Config, o options, bars domrepo.BarStore, l *applogger.Logger) error {
	uc := usecase.NewSweepUseCase(bars, metrics.Noop{}, l)
	uc.SetMaxCombos(cfg.Sweep.MaxCombos)
	for _, sym := range o.symbols {
		p, err := usecase.SweepParamsFrom(models.SweepRequest{
			Symbol: sym, From: o.from, To: o.to, TF: o.tf, Workers: o.workers, Top: cfg.Sweep.Top,
		}, cfg.Strategy)
		if err != nil {
			return err
		}
		res, err := uc.Grid(ctx, p)
		if err != nil {
			return fmt.Errorf("sweep %s: %w", sym, err)
		}
		if err := writeJSON(filepath.Join(o.out, sym+"_sweep.json"), res); err != nil {
			return err
		}
		for i, e := range res.Entries {
			fmt.Printf("%s #%d sharpe=%.3f return=%.2f%% trades=%d %v %s\n",
				sym, i+1, e.Metrics.SharpeRatio, e.Metrics.TotalReturnPct, e.Metrics.TotalTrades, e.Values, e.Error)
		}
	}
	return nil
}

func runWalkForward(ctx context.Context, cfg *config.Config, o options, bars domrepo.BarStore, l *applogger.Logger) error {
	uc := usecase.NewSweepUseCase(bars, metrics.Noop{}, l)
	uc.SetMaxCombos(cfg.Sweep.MaxCombos)
	for _, sym := range o.symbols {
		p, err := usecase.WalkForwardParamsFrom(models.WalkForwardRequest{
			Symbol: sym, From: o.from, To: o.to, TF: o.tf,
			TrainDays: cfg.Sweep.TrainDays, TestDays: cfg.Sweep.TestDays, Workers: o.workers,
		}, cfg.Strategy)
		if err != nil {
			return err
		}
		res, err := uc.WalkForward(ctx, p)
		if err != nil {
			return fmt.Errorf("walk-forward %s: %w", sym, err)
		}
		if err := writeJSON(filepath.Join(o.out, sym+"_walkforward.json"), res); err != nil {
			return err
		}
		fmt.Printf("%s windows=%d test_trades=%d test_pnl=%.2f\n", sym, len(res.Windows), res.TestTrades, res.TotalTestPL)
	}
	return nil
}

// writeRun stores trades.csv, equity.csv, report.md and result.json in dir.
func writeRun(dir string, res *models.BacktestResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := writeFile(filepath.Join(dir, "trades.csv"), func(w io.Writer) error {
		return repository.WriteTradesCSV(w, res.Trades)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "equity.csv"), func(w io.Writer) error {
		return repository.WriteEquityCSV(w, res.Equity)
	}); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(res.Report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return writeJSON(filepath.Join(dir, "result.json"), res.Summary())
}

func writeJSON(path string, v interface{}) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
