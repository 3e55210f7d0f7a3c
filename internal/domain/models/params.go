package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Params is the immutable strategy parameter set. Build it with DefaultParams
// or ApplyDefaults, validate once, then pass it by value. Sweeps derive new
// values with With instead of mutating a shared instance.
type Params struct {
	Timezone        string `yaml:"timezone" json:"timezone" default:"America/New_York" validate:"required"`
	MarketOpen      string `yaml:"market_open" json:"market_open" default:"09:30" validate:"datetime=15:04"`
	ORPeriodMinutes int    `yaml:"or_period_minutes" json:"or_period_minutes" default:"15" validate:"gte=1,lte=390"`

	BreakoutBufferPct float64 `yaml:"breakout_buffer_pct" json:"breakout_buffer_pct" default:"0.0005" validate:"gte=0,lt=1"`
	ConfirmationBars  int     `yaml:"confirmation_bars" json:"confirmation_bars" default:"2" validate:"gte=1,lte=100"`
	VolumeMultiplier  float64 `yaml:"volume_multiplier" json:"volume_multiplier" default:"1.5" validate:"gte=0"`
	MinRelativeVolume float64 `yaml:"min_relative_volume" json:"min_relative_volume" default:"1.0" validate:"gte=0"`
	MinATRMultiplier  float64 `yaml:"min_atr_multiplier" json:"min_atr_multiplier" default:"0.5" validate:"gte=0"`
	MaxGapPct         float64 `yaml:"max_gap_pct" json:"max_gap_pct" default:"0.01" validate:"gt=0"`
	MinORRangePct     float64 `yaml:"min_or_range_pct" json:"min_or_range_pct" default:"0.002" validate:"gte=0"`
	UseTrendFilter    bool    `yaml:"use_trend_filter" json:"use_trend_filter"`

	InitialStopMultiplier  float64 `yaml:"initial_stop_multiplier" json:"initial_stop_multiplier" default:"0.75" validate:"gt=0"`
	BreakevenMultiplier    float64 `yaml:"breakeven_multiplier" json:"breakeven_multiplier" default:"0.5" validate:"gt=0"`
	Target1Multiplier      float64 `yaml:"target_1_multiplier" json:"target_1_multiplier" default:"1.0" validate:"gt=0"`
	Target2Multiplier      float64 `yaml:"target_2_multiplier" json:"target_2_multiplier" default:"1.5" validate:"gt=0"`
	Target3Multiplier      float64 `yaml:"target_3_multiplier" json:"target_3_multiplier" default:"2.0" validate:"gt=0"`
	ScaleOut1Pct           float64 `yaml:"scale_out_1_pct" json:"scale_out_1_pct" default:"0.5" validate:"gte=0,lte=1"`
	ScaleOut2Pct           float64 `yaml:"scale_out_2_pct" json:"scale_out_2_pct" default:"0.25" validate:"gte=0,lte=1"`
	ScaleOut3Pct           float64 `yaml:"scale_out_3_pct" json:"scale_out_3_pct" default:"0.25" validate:"gte=0,lte=1"`
	TrailingStopMultiplier float64 `yaml:"trailing_stop_multiplier" json:"trailing_stop_multiplier" default:"0.3" validate:"gte=0"`

	TimeStop         string `yaml:"time_stop" json:"time_stop" default:"15:55" validate:"datetime=15:04"`
	TradingWindowEnd string `yaml:"trading_window_end" json:"trading_window_end" default:"15:30" validate:"datetime=15:04"`

	MaxPositionSizePct float64 `yaml:"max_position_size_pct" json:"max_position_size_pct" default:"0.15" validate:"gt=0,lte=1"`
	MinPositionSizePct float64 `yaml:"min_position_size_pct" json:"min_position_size_pct" default:"0.005" validate:"gte=0,lte=1"`
	MaxRiskPerTradePct float64 `yaml:"max_risk_per_trade_pct" json:"max_risk_per_trade_pct" default:"0.02" validate:"gt=0,lte=1"`
	KellySafetyFactor  float64 `yaml:"kelly_safety_factor" json:"kelly_safety_factor" default:"0.25" validate:"gt=0,lte=1"`
	KellyWinRate       float64 `yaml:"kelly_win_rate" json:"kelly_win_rate" default:"0.45" validate:"gt=0,lt=1"`
	KellyWinLossRatio  float64 `yaml:"kelly_win_loss_ratio" json:"kelly_win_loss_ratio" default:"1.8" validate:"gt=0"`
	MaxDailyLossPct    float64 `yaml:"max_daily_loss_pct" json:"max_daily_loss_pct" default:"0.05" validate:"gte=0,lte=1"`

	CommissionPerTrade float64 `yaml:"commission_per_trade" json:"commission_per_trade" default:"1.0" validate:"gte=0"`
	SlippagePct        float64 `yaml:"slippage_pct" json:"slippage_pct" default:"0.0005" validate:"gte=0,lt=1"`
	InitialCapital     float64 `yaml:"initial_capital" json:"initial_capital" default:"100000" validate:"gt=0"`

	ATRPeriod            int `yaml:"atr_period" json:"atr_period" default:"14" validate:"gte=1"`
	ATRSMAPeriod         int `yaml:"atr_sma_period" json:"atr_sma_period" default:"20" validate:"gte=1"`
	VolumeSMAPeriod      int `yaml:"volume_sma_period" json:"volume_sma_period" default:"20" validate:"gte=1"`
	RelativeVolumePeriod int `yaml:"relative_volume_period" json:"relative_volume_period" default:"5" validate:"gte=1"`
	EMAFastPeriod        int `yaml:"ema_fast_period" json:"ema_fast_period" default:"9" validate:"gte=1"`
	EMASlowPeriod        int `yaml:"ema_slow_period" json:"ema_slow_period" default:"21" validate:"gte=1"`
}

// DefaultParams returns the stock parameter set.
func DefaultParams() Params {
	var p Params
	_ = defaults.Set(&p)
	return p
}

// ApplyDefaults fills zero-valued fields from the default tags.
func (p *Params) ApplyDefaults() error {
	if err := defaults.Set(p); err != nil {
		return fmt.Errorf("params defaults: %w", err)
	}
	return nil
}

// Validate checks field ranges and the cross-field rules. Every failure is a
// *ConfigurationError and must stop the run before any bar is processed.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigurationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q (value %v)", fe.Tag(), fe.Value())}
		}
		return &ConfigurationError{Reason: err.Error()}
	}

	if !(p.Target1Multiplier < p.Target2Multiplier && p.Target2Multiplier < p.Target3Multiplier) {
		return &ConfigurationError{Field: "Target*Multiplier", Reason: "profit targets must be strictly ascending"}
	}
	if sum := p.ScaleOut1Pct + p.ScaleOut2Pct + p.ScaleOut3Pct; math.Abs(sum-1) > 0.01 {
		return &ConfigurationError{Field: "ScaleOut*Pct", Reason: fmt.Sprintf("scale-out fractions sum to %.4f, want 1.0", sum)}
	}
	if p.MaxPositionSizePct <= p.MinPositionSizePct {
		return &ConfigurationError{Field: "MaxPositionSizePct", Reason: "must be greater than MinPositionSizePct"}
	}
	if p.MaxRiskPerTradePct > p.MaxPositionSizePct {
		return &ConfigurationError{Field: "MaxRiskPerTradePct", Reason: "must not exceed MaxPositionSizePct"}
	}
	if p.UseTrendFilter && p.EMAFastPeriod >= p.EMASlowPeriod {
		return &ConfigurationError{Field: "EMAFastPeriod", Reason: "must be shorter than EMASlowPeriod"}
	}

	sch, err := p.Schedule()
	if err != nil {
		return err
	}
	if sch.OREnd >= sch.WindowEnd {
		return &ConfigurationError{Field: "TradingWindowEnd", Reason: fmt.Sprintf("opening range ends at %s, after the trading window end %s", sch.OREnd, sch.WindowEnd)}
	}
	if sch.WindowEnd >= sch.TimeStop {
		return &ConfigurationError{Field: "TimeStop", Reason: "trading window end must precede the time stop"}
	}
	return nil
}

// Clock is a time of day in seconds since midnight.
type Clock int

// ParseClock reads "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return Clock(t.Hour()*3600 + t.Minute()*60), nil
}

// ClockOf returns the time of day of t in loc.
func ClockOf(t time.Time, loc *time.Location) Clock {
	t = t.In(loc)
	return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/3600, (int(c)%3600)/60)
}

// Schedule is the parsed intraday timetable of a parameter set.
type Schedule struct {
	Loc        *time.Location
	MarketOpen Clock
	OREnd      Clock
	WindowEnd  Clock
	TimeStop   Clock
}

func (p Params) Schedule() (Schedule, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return Schedule{}, &ConfigurationError{Field: "Timezone", Reason: err.Error()}
	}
	open, err := ParseClock(p.MarketOpen)
	if err != nil {
		return Schedule{}, &ConfigurationError{Field: "MarketOpen", Reason: err.Error()}
	}
	end, err := ParseClock(p.TradingWindowEnd)
	if err != nil {
		return Schedule{}, &ConfigurationError{Field: "TradingWindowEnd", Reason: err.Error()}
	}
	stop, err := ParseClock(p.TimeStop)
	if err != nil {
		return Schedule{}, &ConfigurationError{Field: "TimeStop", Reason: err.Error()}
	}
	return Schedule{
		Loc:        loc,
		MarketOpen: open,
		OREnd:      open + Clock(p.ORPeriodMinutes*60),
		WindowEnd:  end,
		TimeStop:   stop,
	}, nil
}

// SweepKeys lists the parameters a grid sweep may vary.
var SweepKeys = []string{
	"min_or_range_pct", "volume_multiplier", "confirmation_bars", "initial_stop_multiplier",
	"breakout_buffer_pct", "breakeven_multiplier", "min_atr_multiplier", "max_gap_pct",
	"target_1_multiplier", "target_2_multiplier", "target_3_multiplier", "or_period_minutes",
}

// With returns a copy of p with one sweepable parameter replaced.
func (p Params) With(key string, v float64) (Params, error) {
	switch key {
	case "min_or_range_pct":
		p.MinORRangePct = v
	case "volume_multiplier":
		p.VolumeMultiplier = v
	case "confirmation_bars":
		p.ConfirmationBars = int(v)
	case "initial_stop_multiplier":
		p.InitialStopMultiplier = v
	case "breakout_buffer_pct":
		p.BreakoutBufferPct = v
	case "breakeven_multiplier":
		p.BreakevenMultiplier = v
	case "min_atr_multiplier":
		p.MinATRMultiplier = v
	case "max_gap_pct":
		p.MaxGapPct = v
	case "target_1_multiplier":
		p.Target1Multiplier = v
	case "target_2_multiplier":
		p.Target2Multiplier = v
	case "target_3_multiplier":
		p.Target3Multiplier = v
	case "or_period_minutes":
		p.ORPeriodMinutes = int(v)
	default:
		return p, &ConfigurationError{Field: key, Reason: "not a sweepable parameter"}
	}
	return p, nil
}
