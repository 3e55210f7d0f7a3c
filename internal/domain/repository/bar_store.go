package repository

import (
	"context"
	"time"

	"OrbLab/internal/domain/models"
)

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// BarStore provides read-only access to historical OHLCV bars.
// Bars are returned ascending by time with derived columns empty.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Bar, error)
	Symbols(ctx context.Context, tf Timeframe) ([]string, error)
}
