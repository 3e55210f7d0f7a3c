package repository

import (
	"context"
	"errors"

	"OrbLab/internal/domain/models"
)

// ErrNotFound is returned when a run id is unknown to a store.
var ErrNotFound = errors.New("not found")

// ResultStore persists finished backtests.
type ResultStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Save(ctx context.Context, r *models.BacktestResult) error
	Get(ctx context.Context, runID string) (*models.BacktestResult, error)
	Health(ctx context.Context) error
	Close() error
}

// ResultPublisher announces finished backtests to downstream consumers.
type ResultPublisher interface {
	Publish(ctx context.Context, r *models.BacktestResult) error
	Close() error
}

type Metrics interface {
	RecordBacktest(symbol, status string)
	RecordTrade(direction, exitReason string)
	RecordSkip(reason string)
	RecordFinalEquity(symbol string, equity float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// RequestQueue hands a backtest request to the async workers.
type RequestQueue interface {
	Enqueue(ctx context.Context, req *models.RunRequest) error
}
