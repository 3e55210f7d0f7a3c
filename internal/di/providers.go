package di

import (
	"context"
	"fmt"
	"time"

	"OrbLab/internal/domain/repository"
	"OrbLab/internal/handler/api"
	internalrepo "OrbLab/internal/repository"
	"OrbLab/internal/service/ratelimit"
	"OrbLab/internal/usecase"
	"OrbLab/pkg/cache"
	pkgch "OrbLab/pkg/clickhouse"
	"OrbLab/pkg/config"
	xhttp "OrbLab/pkg/http"
	pkgkafka "OrbLab/pkg/kafka"
	applogger "OrbLab/pkg/logger"
	"OrbLab/pkg/metrics"
	"OrbLab/pkg/queue"
	"OrbLab/pkg/server"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects and creates the bar and result tables.
// It returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithLogger(l),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	schema := append(internalrepo.BarSchema(cfg.ClickHouse.Database), internalrepo.ResultSchema(cfg.ClickHouse.Database)...)
	if err := client.InitSchema(ctx, schema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideRedisCache connects to Redis, nil when Redis is disabled. The
// client is closed through the layered cache built on top of it.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache returns Redis behind an in-process layer when Redis is
// enabled, a memory cache otherwise.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) (cache.Service, func()) {
	if rc == nil {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(1000), cache.WithMemoryCleanup(time.Minute))
		return mc, func() { _ = mc.Close() }
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemory(1000, cfg.Redis.MemoryTTL))
	cleanup := func() {
		if err := lc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	return lc, cleanup
}

// ProvideBarStore picks the bar source named by data.source.
func ProvideBarStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.BarStore, error) {
	switch cfg.Data.Source {
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("bar store: clickhouse is disabled")
		}
		s := internalrepo.NewCHBarStore(ch, cfg.ClickHouse.Database)
		s.SetLogger(l)
		return s, nil
	default:
		sch, err := cfg.Strategy.Schedule()
		if err != nil {
			return nil, fmt.Errorf("bar store: %w", err)
		}
		s := internalrepo.NewCSVBarStore(cfg.Data.CSVDir, sch.Loc)
		s.SetLogger(l)
		return s, nil
	}
}

// ProvideResultStore keeps runs in ClickHouse when enabled, in memory
// otherwise, and reads them through the cache.
func ProvideResultStore(cfg *config.Config, ch *pkgch.Client, c cache.Service, l *applogger.Logger) repository.ResultStore {
	var next repository.ResultStore = internalrepo.NewMemoryResultStore()
	if ch != nil {
		next = internalrepo.NewCHResultStore(ch, cfg.ClickHouse.Database, l)
	}
	return internalrepo.NewCachedResultStore(next, c, cfg.Redis.ResultTTL, l)
}

// ProvideKafkaProducer creates a Kafka producer, nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(l),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	cleanup := func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideResultPublisher publishes finished runs to the results topic.
func ProvideResultPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ResultPublisher {
	if producer == nil {
		return internalrepo.NoopPublisher{}
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideBacktestUseCase creates the single-run use case.
func ProvideBacktestUseCase(
	cfg *config.Config,
	bars repository.BarStore,
	results repository.ResultStore,
	pub repository.ResultPublisher,
	c cache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.BacktestUseCase {
	uc := usecase.NewBacktestUseCase(bars, results, pub, c, m, cfg.Strategy, l)
	uc.SetTTLs(cfg.Sweep.LockTimeout, cfg.Redis.ResultTTL)
	return uc
}

// ProvideSweepUseCase creates the grid and walk-forward use case.
func ProvideSweepUseCase(cfg *config.Config, bars repository.BarStore, m repository.Metrics, l *applogger.Logger) *usecase.SweepUseCase {
	uc := usecase.NewSweepUseCase(bars, m, l)
	uc.SetMaxCombos(cfg.Sweep.MaxCombos)
	return uc
}

// ProvideKafkaConsumer creates the request consumer, nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.RunIDHook(l))
	return consumer, nil
}

// ProvideBacktestRequestHandler handles the backtest requests topic.
func ProvideBacktestRequestHandler(cfg *config.Config, uc *usecase.BacktestUseCase, m repository.Metrics, l *applogger.Logger) *usecase.BacktestRequestHandler {
	return usecase.NewBacktestRequestHandler(cfg.Kafka.RequestsTopic, uc, m, l)
}

// ProvideRateLimiter returns nil when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
}

// ProvideRedisQueue builds the Redis job queue for async backtests. It
// returns nil unless redis.queue is enabled and Kafka is not.
func ProvideRedisQueue(cfg *config.Config, rc *cache.RedisCache, kh *usecase.BacktestRequestHandler, l *applogger.Logger) (*queue.RedisQueue, error) {
	if rc == nil || !cfg.Redis.Queue.Enabled || cfg.Kafka.Enabled {
		return nil, nil
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:     cfg.Redis.Queue.Workers,
		RetryLimit:  cfg.Redis.Queue.RetryLimit,
		RetryDelay:  cfg.Redis.Queue.RetryDelay,
		PollTimeout: cfg.Redis.Queue.PollTimeout,
		KeyPrefix:   cfg.Redis.Queue.KeyPrefix,
	}, rc.Client())
	if err := q.Register(kh); err != nil {
		return nil, fmt.Errorf("redis queue: %w", err)
	}
	return q, nil
}

// ProvideRequestQueue picks the async transport: Kafka, then the Redis
// queue, else none.
func ProvideRequestQueue(cfg *config.Config, producer *pkgkafka.Producer, rq *queue.RedisQueue) repository.RequestQueue {
	switch {
	case producer != nil:
		return internalrepo.NewKafkaRequestQueue(producer, cfg.Kafka.RequestsTopic)
	case rq != nil:
		return internalrepo.NewRedisRequestQueue(rq, usecase.JobTypeBacktest)
	default:
		return nil
	}
}

// ProvideHTTPHandler creates the echo routes.
func ProvideHTTPHandler(
	bt *usecase.BacktestUseCase,
	sweep *usecase.SweepUseCase,
	requests repository.RequestQueue,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) xhttp.Handler {
	h := api.NewBacktestEchoHandler(l, bt, sweep)
	if requests != nil {
		h.SetQueue(requests)
	}
	if limiter != nil {
		h.SetLimiter(limiter)
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh *usecase.BacktestRequestHandler,
	jobs *queue.RedisQueue,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) *server.App {
	return server.New(cfg, handler, consumer, kh, jobs, limiter, l)
}
