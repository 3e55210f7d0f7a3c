package models

import "time"

// SweepEntry is one parameter combination of a grid sweep.
type SweepEntry struct {
	Values  map[string]float64 `json:"values"`
	Metrics Metrics            `json:"metrics"`
	Error   string             `json:"error,omitempty"`
}

type SweepResult struct {
	Symbol   string       `json:"symbol"`
	Combos   int          `json:"combos"`
	Rejected int          `json:"rejected"`
	Entries  []SweepEntry `json:"entries"`
}

// WalkForwardWindow is one train/test split. Best is chosen on the train
// sessions and evaluated out of sample on the test sessions.
type WalkForwardWindow struct {
	TrainFrom string             `json:"train_from"`
	TrainTo   string             `json:"train_to"`
	TestFrom  string             `json:"test_from"`
	TestTo    string             `json:"test_to"`
	Best      map[string]float64 `json:"best"`
	Train     Metrics            `json:"train"`
	Test      Metrics            `json:"test"`
}

type WalkForwardResult struct {
	Symbol      string              `json:"symbol"`
	Windows     []WalkForwardWindow `json:"windows"`
	TotalTestPL float64             `json:"total_test_pnl"`
	TestTrades  int                 `json:"test_trades"`
	GeneratedAt time.Time           `json:"generated_at"`
}
