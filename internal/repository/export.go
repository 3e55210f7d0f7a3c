package repository

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"OrbLab/internal/domain/models"
)

var tradeHeader = []string{
	"trade_id", "symbol", "direction", "entry_time", "entry_price", "shares",
	"exit_time", "exit_price", "exit_reason", "partial_exits", "pnl", "pnl_pct",
	"r_multiple", "holding_hours", "or_range",
}

// WriteTradesCSV writes one row per closed trade. Money columns are
// rounded to cents and prices to four decimals.
func WriteTradesCSV(w io.Writer, trades []models.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range trades {
		rec := []string{
			t.ID,
			t.Symbol,
			string(t.Direction),
			t.EntryTime.Format(time.RFC3339),
			price(t.EntryPrice).StringFixed(4),
			strconv.Itoa(t.Shares),
			t.ExitTime.Format(time.RFC3339),
			price(t.ExitPrice).StringFixed(4),
			string(t.ExitReason),
			strconv.Itoa(len(t.PartialExits)),
			money(t.PnL).StringFixed(2),
			strconv.FormatFloat(t.PnLPct, 'f', 4, 64),
			strconv.FormatFloat(t.RMultiple, 'f', 4, 64),
			strconv.FormatFloat(t.HoldingHours, 'f', 4, 64),
			price(t.ORRange).StringFixed(4),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write trade %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes the per-bar equity curve.
func WriteEquityCSV(w io.Writer, equity []models.EquitySample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "cash", "open_pnl", "equity", "open_positions"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range equity {
		rec := []string{
			s.Time.Format(time.RFC3339),
			money(s.Cash).StringFixed(2),
			money(s.OpenPnL).StringFixed(2),
			money(s.Equity).StringFixed(2),
			strconv.Itoa(s.OpenPositions),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write equity: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
