package models

import (
	"encoding/json"
	"time"
)

// Opt is a float value that may be absent (indicator warm-up, day without opening range).
type Opt struct {
	V  float64
	Ok bool
}

func Some(v float64) Opt { return Opt{V: v, Ok: true} }

func None() Opt { return Opt{} }

// Or returns the value when present, def otherwise.
func (o Opt) Or(def float64) float64 {
	if o.Ok {
		return o.V
	}
	return def
}

func (o Opt) MarshalJSON() ([]byte, error) {
	if !o.Ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.V)
}

func (o *Opt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = Opt{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// Bar is one OHLCV record plus the columns derived by the indicator,
// opening-range and signal stages.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	ATR            Opt `json:"atr"`
	ATRSMA         Opt `json:"atr_sma"`
	VolumeSMA      Opt `json:"volume_sma"`
	VolumeRatio    Opt `json:"volume_ratio"`
	RelativeVolume Opt `json:"relative_volume"`
	EMAFast        Opt `json:"ema_fast"`
	EMASlow        Opt `json:"ema_slow"`
	PrevClose      Opt `json:"prev_close"`

	ORHigh  Opt  `json:"or_high"`
	ORLow   Opt  `json:"or_low"`
	ORRange Opt  `json:"or_range"`
	ORValid bool `json:"or_valid"`

	LongSignal  bool `json:"long_signal"`
	ShortSignal bool `json:"short_signal"`
	SignalPrice Opt  `json:"signal_price"`
}

// Session is one trading day expressed as a half-open index range [Start, End)
// into the bar slice it was partitioned from.
type Session struct {
	Date  string `json:"date"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

func (s Session) Len() int { return s.End - s.Start }

// TradingDay holds the opening range of one session.
type TradingDay struct {
	Date       string  `json:"date"`
	ORHigh     float64 `json:"or_high"`
	ORLow      float64 `json:"or_low"`
	ORRange    float64 `json:"or_range"`
	ORRangePct float64 `json:"or_range_pct"`
	Valid      bool    `json:"valid"`
}

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign is +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Signal is a confirmed and validated breakout. At most one per day.
type Signal struct {
	Date      string    `json:"date"`
	Direction Direction `json:"direction"`
	Time      time.Time `json:"time"`
	Price     float64   `json:"price"`
	BarIndex  int       `json:"bar_index"`
}
