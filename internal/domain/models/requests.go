package models

// Requests for the backtest HTTP endpoints and the Kafka request topic.

type RunRequest struct {
	RunID     string             `json:"run_id,omitempty"`
	Symbol    string             `query:"symbol" json:"symbol" validate:"required,max=16"`
	From      string             `query:"from" json:"from"`
	To        string             `query:"to" json:"to"`
	TF        string             `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m"`
	Overrides map[string]float64 `json:"overrides,omitempty"`
	Trend     *bool              `json:"use_trend_filter,omitempty"`
}

type SweepRequest struct {
	Symbol  string               `query:"symbol" json:"symbol" validate:"required,max=16"`
	From    string               `query:"from" json:"from"`
	To      string               `query:"to" json:"to"`
	TF      string               `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m"`
	Grid    map[string][]float64 `json:"grid,omitempty"`
	Workers int                  `query:"workers" json:"workers" default:"4" validate:"gte=1,lte=32"`
	Top     int                  `query:"top" json:"top" default:"10" validate:"gte=1,lte=500"`
}

type WalkForwardRequest struct {
	Symbol    string               `query:"symbol" json:"symbol" validate:"required,max=16"`
	From      string               `query:"from" json:"from"`
	To        string               `query:"to" json:"to"`
	TF        string               `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m"`
	Grid      map[string][]float64 `json:"grid,omitempty"`
	TrainDays int                  `query:"train_days" json:"train_days" default:"20" validate:"gte=1,lte=250"`
	TestDays  int                  `query:"test_days" json:"test_days" default:"5" validate:"gte=1,lte=250"`
	Workers   int                  `query:"workers" json:"workers" default:"4" validate:"gte=1,lte=32"`
}

type RunIDRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}
