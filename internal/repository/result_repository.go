package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"OrbLab/internal/domain/models"
	"OrbLab/internal/domain/repository"
	"OrbLab/pkg/cache"
	pkgch "OrbLab/pkg/clickhouse"
	pkgkafka "OrbLab/pkg/kafka"
	applogger "OrbLab/pkg/logger"

	"github.com/shopspring/decimal"
)

// money rounds a ledger amount to cents.
func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// price keeps four decimals for fills and levels.
func price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(4)
}

// CHResultStore implements ResultStore for ClickHouse. The run row keeps the
// full result as JSON; trades are also written to a flat table for queries.
type CHResultStore struct {
	client   *pkgch.Client
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHResultStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHResultStore {
	if database == "" {
		database = "orb"
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHResultStore{client: ch, db: ch.DB(), database: database, l: l}
}

// ResultSchema returns the idempotent DDL for the result tables.
func ResultSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.backtest_runs (
            run_id String, symbol LowCardinality(String), timeframe LowCardinality(String),
            from_ts DateTime64(3, 'UTC'), to_ts DateTime64(3, 'UTC'), bars UInt32, trades UInt32,
            total_pnl Decimal(18, 2), total_return_pct Float64, sharpe Float64, max_drawdown_pct Float64,
            final_capital Decimal(18, 2), started_at DateTime64(3, 'UTC'), finished_at DateTime64(3, 'UTC'),
            payload String
        ) ENGINE=ReplacingMergeTree ORDER BY run_id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.backtest_trades (
            run_id String, trade_id String, symbol LowCardinality(String), direction LowCardinality(String),
            entry_time DateTime64(3, 'UTC'), entry_price Decimal(18, 4), shares UInt32,
            exit_time DateTime64(3, 'UTC'), exit_price Decimal(18, 4), exit_reason LowCardinality(String),
            pnl Decimal(18, 2), r_multiple Float64, holding_hours Float64, or_range Float64
        ) ENGINE=MergeTree ORDER BY (run_id, entry_time)`, database),
	}
}

func (s *CHResultStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, ResultSchema(s.database))
}

func (s *CHResultStore) Save(ctx context.Context, r *models.BacktestResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s.backtest_runs (run_id, symbol, timeframe, from_ts, to_ts, bars, trades,
        total_pnl, total_return_pct, sharpe, max_drawdown_pct, final_capital, started_at, finished_at, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	m := r.Metrics
	if _, err := s.db.ExecContext(ctx, q,
		r.RunID, r.Symbol, r.Timeframe, r.From.UTC(), r.To.UTC(), uint32(r.Bars), uint32(len(r.Trades)),
		money(m.TotalPnL), m.TotalReturnPct, m.SharpeRatio, m.MaxDrawdownPct, money(m.FinalCapital),
		r.StartedAt.UTC(), r.FinishedAt.UTC(), string(payload),
	); err != nil {
		s.l.Error("clickhouse save_run error", applogger.String("run_id", r.RunID), applogger.Error(err))
		return fmt.Errorf("insert run: %w", err)
	}
	return s.saveTrades(ctx, r)
}

func (s *CHResultStore) saveTrades(ctx context.Context, r *models.BacktestResult) error {
	const chunkSize = 1000
	for start := 0; start < len(r.Trades); start += chunkSize {
		end := min(start+chunkSize, len(r.Trades))
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*14)
		for _, t := range r.Trades[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.RunID, t.ID, t.Symbol, string(t.Direction),
				t.EntryTime.UTC(), price(t.EntryPrice), uint32(t.Shares),
				t.ExitTime.UTC(), price(t.ExitPrice), string(t.ExitReason),
				money(t.PnL), t.RMultiple, t.HoldingHours, t.ORRange,
			)
		}
		q := fmt.Sprintf(`INSERT INTO %s.backtest_trades (run_id, trade_id, symbol, direction, entry_time, entry_price,
            shares, exit_time, exit_price, exit_reason, pnl, r_multiple, holding_hours, or_range) VALUES %s`,
			s.database, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse save_trades error", applogger.String("run_id", r.RunID), applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("insert trades: %w", err)
		}
	}
	return nil
}

func (s *CHResultStore) Get(ctx context.Context, runID string) (*models.BacktestResult, error) {
	q := fmt.Sprintf("SELECT payload FROM %s.backtest_runs FINAL WHERE run_id = ? LIMIT 1", s.database)
	var payload string
	if err := s.db.QueryRowContext(ctx, q, runID).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	var r models.BacktestResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &r, nil
}

func (s *CHResultStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHResultStore) Close() error {
	return nil // client owned by the app
}

// MemoryResultStore keeps results in process; used when ClickHouse is off.
type MemoryResultStore struct {
	mu   sync.RWMutex
	runs map[string]*models.BacktestResult
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{runs: make(map[string]*models.BacktestResult)}
}

func (s *MemoryResultStore) Init(context.Context) error { return nil }

func (s *MemoryResultStore) Save(_ context.Context, r *models.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.RunID] = r
	return nil
}

func (s *MemoryResultStore) Get(_ context.Context, runID string) (*models.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

func (s *MemoryResultStore) Health(context.Context) error { return nil }
func (s *MemoryResultStore) Close() error                 { return nil }

// CachedResultStore reads through a cache in front of another store.
type CachedResultStore struct {
	next repository.ResultStore
	c    cache.Service
	ttl  time.Duration
	l    *applogger.Logger
}

func NewCachedResultStore(next repository.ResultStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedResultStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedResultStore{next: next, c: c, ttl: ttl, l: l}
}

// RunKey is the cache key of a stored run.
func RunKey(runID string) string { return cache.GenerateKey("orb:run", runID) }

func (s *CachedResultStore) Init(ctx context.Context) error { return s.next.Init(ctx) }

func (s *CachedResultStore) Save(ctx context.Context, r *models.BacktestResult) error {
	if err := s.next.Save(ctx, r); err != nil {
		return err
	}
	if err := s.c.Set(ctx, RunKey(r.RunID), r, s.ttl); err != nil {
		s.l.Warn("cache set failed", applogger.String("run_id", r.RunID), applogger.Error(err))
	}
	return nil
}

func (s *CachedResultStore) Get(ctx context.Context, runID string) (*models.BacktestResult, error) {
	var r models.BacktestResult
	err := s.c.Get(ctx, RunKey(runID), &r)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("cache get failed", applogger.String("run_id", runID), applogger.Error(err))
	}
	res, err := s.next.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	_ = s.c.Set(ctx, RunKey(runID), res, s.ttl)
	return res, nil
}

func (s *CachedResultStore) Health(ctx context.Context) error { return s.next.Health(ctx) }
func (s *CachedResultStore) Close() error                     { return s.next.Close() }

// KafkaResultPublisher implements ResultPublisher for Kafka.
type KafkaResultPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

// Publish sends the run summary followed by one message per closed trade,
// all keyed by symbol so they land on one partition in order.
func (p *KafkaResultPublisher) Publish(ctx context.Context, r *models.BacktestResult) error {
	key := []byte(r.Symbol)
	headers := map[string]string{pkgkafka.HeaderRunID: r.RunID}
	msgs := make([]pkgkafka.Message, 0, len(r.Trades)+1)
	msgs = append(msgs, pkgkafka.Message{Key: key, Value: r.Summary(), Headers: headers})
	for i := range r.Trades {
		msgs = append(msgs, pkgkafka.Message{Key: key, Value: TradeEvent{RunID: r.RunID, Trade: r.Trades[i]}, Headers: headers})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// TradeEvent is the per-trade message on the results topic.
type TradeEvent struct {
	RunID string       `json:"run_id"`
	Trade models.Trade `json:"trade"`
}

func (p *KafkaResultPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher drops results; used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.BacktestResult) error { return nil }
func (NoopPublisher) Close() error                                        { return nil }

var (
	_ repository.ResultStore     = (*CHResultStore)(nil)
	_ repository.ResultStore     = (*MemoryResultStore)(nil)
	_ repository.ResultStore     = (*CachedResultStore)(nil)
	_ repository.ResultPublisher = (*KafkaResultPublisher)(nil)
	_ repository.ResultPublisher = NoopPublisher{}
)
