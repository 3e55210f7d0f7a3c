package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OrbLab/internal/service/ratelimit"
	"OrbLab/pkg/config"
	xhttp "OrbLab/pkg/http"
	pkgkafka "OrbLab/pkg/kafka"
	applogger "OrbLab/pkg/logger"
	"OrbLab/pkg/queue"
)

// App encapsulates the service lifecycle: HTTP API, the optional async
// request workers (Kafka consumer or Redis queue) and rate limiter
// housekeeping.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	handler    xhttp.Handler
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	jobs       *queue.RedisQueue
	limiter    *ratelimit.Limiter
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	jobs *queue.RedisQueue,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, handler: handler, consumer: consumer, kh: kh, jobs: jobs, limiter: limiter}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithMetrics(a.cfg.Metrics.Enabled),
		xhttp.WithLogger(a.l, a.cfg.Server.SlowRequest),
	)

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			a.l.Error("redis queue error", applogger.Error(err))
			return err
		}
	}

	if a.limiter != nil {
		go a.pruneLimiter(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("orblab started",
		applogger.String("data_source", a.cfg.Data.Source),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("kafka", a.consumer != nil),
		applogger.Bool("redis_queue", a.jobs != nil),
	)

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) pruneLimiter(ctx context.Context) {
	idle := a.cfg.RateLimit.PruneIdle
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	t := time.NewTicker(idle)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.limiter.Prune(idle); n > 0 {
				a.l.Debug("rate limiter pruned", applogger.Int("buckets", n))
			}
		}
	}
}

// shutdown stops the HTTP server first so no new runs start, then drains
// the async workers. Clients are closed by the injector's cleanup.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.l.Warn("redis queue stop error", applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.l.Info("shutdown complete")
	return firstErr
}
