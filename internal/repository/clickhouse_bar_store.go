package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	pkgch "OrbLab/pkg/clickhouse"
	applogger "OrbLab/pkg/logger"
)

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, database string) *CHBarStore {
	if database == "" {
		database = "orb"
	}
	return &CHBarStore{db: ch.DB(), database: database, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Bar, error) {
	start := time.Now()
	table, err := s.tableForTF(tf)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = time.Now()
	}
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	q := fmt.Sprintf(qtpl, table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		s.l.Error("clickhouse get_bars query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 4096)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			s.l.Error("clickhouse get_bars scan error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse get_bars rows error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Info("clickhouse get_bars ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHBarStore) Symbols(ctx context.Context, tf domrepo.Timeframe) ([]string, error) {
	table, err := s.tableForTF(tf)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT symbol FROM %s ORDER BY symbol", table))
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *CHBarStore) tableForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1m, domrepo.TF5m:
		return fmt.Sprintf("%s.bars_%s", s.database, tf), nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

// BarSchema returns the idempotent DDL for the bar tables.
func BarSchema(database string) []string {
	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)}
	for _, tf := range []domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m} {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s.bars_%s (symbol LowCardinality(String), ts DateTime64(3, 'UTC'), open Float64, high Float64, low Float64, close Float64, volume Float64) ENGINE=ReplacingMergeTree ORDER BY (symbol, ts)",
			database, tf))
	}
	return stmts
}

var _ domrepo.BarStore = (*CHBarStore)(nil)
