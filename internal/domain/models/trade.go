package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type ExitReason string

const (
	ExitTarget1   ExitReason = "Target 1"
	ExitTarget2   ExitReason = "Target 2"
	ExitTarget3   ExitReason = "Target 3"
	ExitStopLoss  ExitReason = "Stop loss"
	ExitTimeStop  ExitReason = "Time stop"
	ExitEndOfData ExitReason = "End of data"
)

// TradeState is the lifecycle of one position: Open -> PartiallyClosed -> Closed.
type TradeState string

const (
	TradeOpen            TradeState = "open"
	TradePartiallyClosed TradeState = "partially_closed"
	TradeClosed          TradeState = "closed"
)

var ErrTradeClosed = errors.New("trade already closed")

// Levels is the exit-level set owned by one trade. CurrentStop only ratchets
// toward reduced risk.
type Levels struct {
	InitialStop      float64 `json:"initial_stop"`
	CurrentStop      float64 `json:"current_stop"`
	BreakevenTrigger float64 `json:"breakeven_trigger"`
	Target1          float64 `json:"target_1"`
	Target2          float64 `json:"target_2"`
	Target3          float64 `json:"target_3"`
	TrailingDistance float64 `json:"trailing_distance"`
	StopMovedToBE    bool    `json:"stop_moved_to_be"`
}

type PartialExit struct {
	Time   time.Time  `json:"time"`
	Price  float64    `json:"price"`
	Shares int        `json:"shares"`
	PnL    float64    `json:"pnl"`
	Reason ExitReason `json:"reason"`
}

type Trade struct {
	ID              string        `json:"id"`
	Symbol          string        `json:"symbol"`
	Direction       Direction     `json:"direction"`
	EntryTime       time.Time     `json:"entry_time"`
	EntryPrice      float64       `json:"entry_price"`
	Shares          int           `json:"shares"`
	RemainingShares int           `json:"remaining_shares"`
	Levels          Levels        `json:"levels"`
	ORRange         float64       `json:"or_range"`
	PartialExits    []PartialExit `json:"partial_exits,omitempty"`
	PnL             float64       `json:"pnl"`
	ExitTime        time.Time     `json:"exit_time"`
	ExitPrice       float64       `json:"exit_price"`
	ExitShares      int           `json:"exit_shares"`
	ExitReason      ExitReason    `json:"exit_reason"`
	PnLPct          float64       `json:"pnl_pct"`
	RMultiple       float64       `json:"r_multiple"`
	HoldingHours    float64       `json:"holding_hours"`
	State           TradeState    `json:"state"`
}

// NewTrade opens a position with the full share count remaining.
func NewTrade(id, symbol string, dir Direction, at time.Time, price float64, shares int, lv Levels, orRange float64) *Trade {
	return &Trade{
		ID:              id,
		Symbol:          symbol,
		Direction:       dir,
		EntryTime:       at,
		EntryPrice:      price,
		Shares:          shares,
		RemainingShares: shares,
		Levels:          lv,
		ORRange:         orRange,
		State:           TradeOpen,
	}
}

// UnrealizedPnL marks the remaining shares at price.
func (t *Trade) UnrealizedPnL(price float64) float64 {
	return t.Direction.Sign() * (price - t.EntryPrice) * float64(t.RemainingShares)
}

// Close is the only operation that mutates share counts. shares <= 0 or
// shares >= remaining closes the remainder and finalizes the trade. The
// returned fill carries the slice pnl net of commission.
func (t *Trade) Close(at time.Time, price float64, reason ExitReason, shares int, commission float64) (TradeState, PartialExit, error) {
	if t.State == TradeClosed || t.RemainingShares <= 0 {
		return TradeClosed, PartialExit{}, ErrTradeClosed
	}
	if shares <= 0 || shares > t.RemainingShares {
		shares = t.RemainingShares
	}

	pnl := t.Direction.Sign()*(price-t.EntryPrice)*float64(shares) - commission
	t.PnL += pnl
	fill := PartialExit{Time: at, Price: price, Shares: shares, PnL: pnl, Reason: reason}

	if shares < t.RemainingShares {
		t.PartialExits = append(t.PartialExits, fill)
		t.RemainingShares -= shares
		t.State = TradePartiallyClosed
		return t.State, fill, nil
	}

	t.RemainingShares = 0
	t.ExitShares = shares
	t.ExitTime = at
	t.ExitPrice = price
	t.ExitReason = reason
	if basis := t.EntryPrice * float64(t.Shares); basis != 0 {
		t.PnLPct = t.PnL / basis * 100
	}
	t.HoldingHours = at.Sub(t.EntryTime).Hours()
	if risk := math.Abs(t.EntryPrice-t.Levels.InitialStop) * float64(t.Shares); risk > 0 {
		t.RMultiple = t.PnL / risk
	}
	t.State = TradeClosed
	return t.State, fill, nil
}

// PartialShares sums the shares closed before the final exit.
func (t *Trade) PartialShares() int {
	n := 0
	for _, p := range t.PartialExits {
		n += p.Shares
	}
	return n
}

func (t *Trade) String() string {
	return fmt.Sprintf("%s %s %d@%.2f", t.Symbol, t.Direction, t.Shares, t.EntryPrice)
}
