package repository

import (
	"testing"
	"time"
)

func TestNormalizeTimeframe(t *testing.T) {
	cases := map[string]Timeframe{
		"":    TF1m,
		"1m":  TF1m,
		"5m":  TF5m,
		"1s":  TF1m,
		"15m": TF1m,
	}
	for in, want := range cases {
		if got := NormalizeTimeframe(in); got != want {
			t.Fatalf("%q: got %s want %s", in, got, want)
		}
	}
	if TF5m.Duration() != 5*time.Minute || TF1m.Duration() != time.Minute {
		t.Fatalf("unexpected durations")
	}
}
