package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func newLong() *Trade {
	lv := Levels{InitialStop: 99, CurrentStop: 99, Target1: 102, Target2: 103, Target3: 104}
	at := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	return NewTrade("id", "SPY", Long, at, 100, 100, lv, 2)
}

func TestTradeCloseSlices(t *testing.T) {
	tr := newLong()
	at := tr.EntryTime.Add(30 * time.Minute)

	state, fill, err := tr.Close(at, 102, ExitTarget1, 50, 1)
	if err != nil || state != TradePartiallyClosed {
		t.Fatalf("partial close: state=%s err=%v", state, err)
	}
	if fill.PnL != 99 || tr.RemainingShares != 50 || len(tr.PartialExits) != 1 {
		t.Fatalf("unexpected partial %+v remaining=%d", fill, tr.RemainingShares)
	}

	state, fill, err = tr.Close(at.Add(90*time.Minute), 98, ExitStopLoss, 0, 1)
	if err != nil || state != TradeClosed {
		t.Fatalf("final close: state=%s err=%v", state, err)
	}
	if fill.Shares != 50 || tr.ExitShares != 50 || tr.RemainingShares != 0 {
		t.Fatalf("remainder not closed: fill=%+v trade=%+v", fill, tr)
	}
	if tr.PnL != 99-101 {
		t.Fatalf("pnl: got %v", tr.PnL)
	}
	if tr.HoldingHours != 2 || math.Abs(tr.PnLPct-(-0.02)) > 1e-9 || math.Abs(tr.RMultiple-(-0.02)) > 1e-9 {
		t.Fatalf("derived fields: hours=%v pct=%v r=%v", tr.HoldingHours, tr.PnLPct, tr.RMultiple)
	}
	if tr.PartialShares()+tr.ExitShares != tr.Shares {
		t.Fatalf("shares do not add up")
	}

	if _, _, err := tr.Close(at, 100, ExitEndOfData, 0, 0); !errors.Is(err, ErrTradeClosed) {
		t.Fatalf("expected ErrTradeClosed, got %v", err)
	}
}

func TestTradeCloseOversizedSliceTakesRemainder(t *testing.T) {
	tr := newLong()
	state, fill, _ := tr.Close(tr.EntryTime, 101, ExitTimeStop, 500, 0)
	if state != TradeClosed || fill.Shares != 100 {
		t.Fatalf("expected the whole position closed, got %s %+v", state, fill)
	}
}

func TestShortPnLSign(t *testing.T) {
	tr := NewTrade("s", "SPY", Short, time.Now(), 100, 10, Levels{InitialStop: 101}, 1)
	if got := tr.UnrealizedPnL(98); got != 20 {
		t.Fatalf("short unrealized: got %v", got)
	}
	_, fill, _ := tr.Close(time.Now(), 99, ExitTarget1, 0, 0)
	if fill.PnL != 10 {
		t.Fatalf("short realized: got %v", fill.PnL)
	}
}

func TestOptJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Opt `json:"a"`
		B Opt `json:"b"`
	}{Some(1.5), None()})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":1.5,"b":null}` {
		t.Fatalf("unexpected json %s", b)
	}
	var o Opt
	if err := json.Unmarshal([]byte("null"), &o); err != nil || o.Ok {
		t.Fatalf("null must decode as absent, got %+v %v", o, err)
	}
}
