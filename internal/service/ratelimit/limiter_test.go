package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterRefills(t *testing.T) {
	clock := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	l := New(2, 1)
	l.now = func() time.Time { return clock }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst of capacity must pass")
	}
	if l.Allow("a") {
		t.Fatalf("empty bucket must reject")
	}
	if !l.Allow("b") {
		t.Fatalf("keys are independent")
	}
	clock = clock.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("one token refills per second")
	}
	if l.Allow("a") {
		t.Fatalf("only one token refilled")
	}
}

func TestLimiterPrune(t *testing.T) {
	clock := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	l := New(1, 1)
	l.now = func() time.Time { return clock }
	l.Allow("a")
	clock = clock.Add(time.Hour)
	l.Allow("b")
	if n := l.Prune(time.Minute); n != 1 {
		t.Fatalf("expected one pruned bucket, got %d", n)
	}
}
