package repository

import (
	"strings"
	"time"
)

// barLengths lists the supported timeframes.
var barLengths = map[Timeframe]time.Duration{
	TF1m: time.Minute,
	TF5m: 5 * time.Minute,
}

func IsValidTimeframe(tf Timeframe) bool {
	_, ok := barLengths[tf]
	return ok
}

// NormalizeTimeframe maps s onto a supported timeframe. Unknown or empty
// values fall back to 1m bars.
func NormalizeTimeframe(s string) Timeframe {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if IsValidTimeframe(tf) {
		return tf
	}
	return TF1m
}

// Duration is the bar length of tf; unknown values report one minute.
func (tf Timeframe) Duration() time.Duration {
	if d, ok := barLengths[tf]; ok {
		return d
	}
	return time.Minute
}
