package usecase

import (
	"context"
	"errors"
	"testing"
)

func TestBacktestRequestHandler(t *testing.T) {
	f := newFixture(t, breakoutDays(4, 5))
	h := NewBacktestRequestHandler("orb.backtest.requests", f.uc, f.metrics, nil)
	ctx := context.Background()

	if h.Topic() != "orb.backtest.requests" || h.Type() != JobTypeBacktest {
		t.Fatalf("topic %q type %q", h.Topic(), h.Type())
	}
	if err := h.Handle(ctx, []byte(`{"run_id":"req-1","symbol":"SPY","tf":"5m"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	res, err := f.store.Get(ctx, "req-1")
	if err != nil || res.Metrics.TotalTrades != 2 {
		t.Fatalf("queued run not stored under its id: %+v %v", res, err)
	}

	if err := h.Handle(ctx, []byte(`{not json`)); err != nil {
		t.Fatalf("malformed payload must be dropped, got %v", err)
	}
	if err := h.Handle(ctx, []byte(`{"symbol":"SPY","overrides":{"nope":1}}`)); err != nil {
		t.Fatalf("invalid request must be dropped, got %v", err)
	}
	if err := h.Handle(ctx, []byte(`{"symbol":"IWM"}`)); err != nil {
		t.Fatalf("missing data is permanent, got %v", err)
	}
	if f.metrics.errs["consumer_unmarshal"] != 1 || f.metrics.errs["consumer_invalid"] != 1 {
		t.Fatalf("consumer errors: %v", f.metrics.errs)
	}
}

func TestBacktestRequestHandlerRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, breakoutDays(4))
	f.bars.err = errBroker
	h := NewBacktestRequestHandler("orb.backtest.requests", f.uc, f.metrics, nil)
	if err := h.Handle(context.Background(), []byte(`{"symbol":"SPY"}`)); !errors.Is(err, errBroker) {
		t.Fatalf("expected transient error to surface, got %v", err)
	}
}
