package usecase

import (
	"context"
	"sync"

	"OrbLab/internal/domain/models"
)

// SymbolOutcome is one symbol of a multi-symbol run.
type SymbolOutcome struct {
	Symbol  string         `json:"symbol"`
	RunID   string         `json:"run_id,omitempty"`
	Metrics models.Metrics `json:"metrics"`
	Error   string         `json:"error,omitempty"`
}

// MultiSymbol runs p for every symbol with at most workers runs in flight.
// A failing symbol is reported in its outcome and does not stop the others.
// Outcomes keep the order of symbols.
func (uc *BacktestUseCase) MultiSymbol(ctx context.Context, symbols []string, p RunParams, workers int) []SymbolOutcome {
	if workers < 1 {
		workers = 1
	}
	out := make([]SymbolOutcome, len(symbols))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out[i] = SymbolOutcome{Symbol: sym, Error: ctx.Err().Error()}
				return
			}
			defer func() { <-sem }()

			rp := p
			rp.RunID = ""
			rp.Symbol = sym
			res, err := uc.Run(ctx, rp)
			if err != nil {
				out[i] = SymbolOutcome{Symbol: sym, Error: err.Error()}
				return
			}
			out[i] = SymbolOutcome{Symbol: res.Symbol, RunID: res.RunID, Metrics: res.Metrics}
		}(i, sym)
	}
	wg.Wait()
	return out
}
