package models

import "time"

// EquitySample is appended once per bar and never mutated.
type EquitySample struct {
	Time          time.Time `json:"time"`
	Cash          float64   `json:"cash"`
	OpenPnL       float64   `json:"open_pnl"`
	Equity        float64   `json:"equity"`
	OpenPositions int       `json:"open_positions"`
}

// Metrics aggregates closed trades and the equity curve of one run.
type Metrics struct {
	TotalTrades     int                `json:"total_trades"`
	WinningTrades   int                `json:"winning_trades"`
	LosingTrades    int                `json:"losing_trades"`
	WinRate         float64            `json:"win_rate"`
	TotalPnL        float64            `json:"total_pnl"`
	TotalReturnPct  float64            `json:"total_return_pct"`
	AvgWin          float64            `json:"avg_win"`
	AvgLoss         float64            `json:"avg_loss"`
	LargestWin      float64            `json:"largest_win"`
	LargestLoss     float64            `json:"largest_loss"`
	ProfitFactor    float64            `json:"profit_factor"`
	SharpeRatio     float64            `json:"sharpe_ratio"`
	MaxDrawdown     float64            `json:"max_drawdown"`
	MaxDrawdownPct  float64            `json:"max_drawdown_pct"`
	AvgRMultiple    float64            `json:"avg_r_multiple"`
	AvgHoldingHours float64            `json:"avg_holding_hours"`
	AvgORRange      float64            `json:"avg_or_range"`
	InitialCapital  float64            `json:"initial_capital"`
	FinalCapital    float64            `json:"final_capital"`
	ExitReasons     map[ExitReason]int `json:"exit_reasons,omitempty"`
}

// SimulationResult is what one engine replay produces.
type SimulationResult struct {
	Trades    []Trade        `json:"trades"`
	Equity    []EquitySample `json:"equity"`
	Skips     []SkipEvent    `json:"skips,omitempty"`
	FinalCash float64        `json:"final_cash"`
}

// BacktestResult is the stored and published outcome of a full pipeline run.
type BacktestResult struct {
	RunID      string         `json:"run_id"`
	Symbol     string         `json:"symbol"`
	Timeframe  string         `json:"timeframe"`
	From       time.Time      `json:"from"`
	To         time.Time      `json:"to"`
	Bars       int            `json:"bars"`
	Params     Params         `json:"params"`
	Days       []TradingDay   `json:"days,omitempty"`
	Signals    []Signal       `json:"signals,omitempty"`
	Trades     []Trade        `json:"trades"`
	Equity     []EquitySample `json:"equity,omitempty"`
	Skips      []SkipEvent    `json:"skips,omitempty"`
	Metrics    Metrics        `json:"metrics"`
	Report     string         `json:"report,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Summary drops the per-bar series for transport.
func (r *BacktestResult) Summary() *BacktestResult {
	s := *r
	s.Equity = nil
	s.Days = nil
	s.Report = ""
	return &s
}
