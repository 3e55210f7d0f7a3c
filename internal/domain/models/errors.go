package models

import (
	"fmt"
	"time"
)

// ConfigurationError reports an invalid parameter combination. Fatal: no run starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// DataError reports unusable input bars. Fatal: no partial result is produced.
type DataError struct {
	Reason string
	Index  int
	Time   time.Time
}

func (e *DataError) Error() string {
	if e.Time.IsZero() {
		return "data: " + e.Reason
	}
	return fmt.Sprintf("data: %s (bar %d at %s)", e.Reason, e.Index, e.Time.Format(time.RFC3339))
}

// SkipReason classifies non-fatal outcomes that drop a day or a signal.
type SkipReason string

const (
	SkipNoORBars       SkipReason = "no_or_bars"
	SkipInvalidOR      SkipReason = "invalid_or"
	SkipZeroSize       SkipReason = "zero_size"
	SkipDailyLossLimit SkipReason = "daily_loss_limit"
)

// SkipEvent is a logged, non-fatal warning raised during a replay.
type SkipEvent struct {
	Time   time.Time  `json:"time"`
	Date   string     `json:"date"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}
