package repository

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	"OrbLab/pkg/cache"
)

var ny, _ = time.LoadLocation("America/New_York")

const sample = `timestamp,open,high,low,close,volume
2024-03-04 09:30:00,100.5,101,100.2,100.8,1200
2024-03-04 09:31:00,100.8,100.9,100,100.4,900
2024-03-04 09:32:00,100.4,100.7,100.3,100.6,1100
2024-03-04 09:35:00,100.6,101.2,100.6,101.1,3000
`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadBarsCSV(t *testing.T) {
	bars, err := ReadBarsCSV(strings.NewReader("\ufeff"+sample), ny)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(bars) != 4 {
		t.Fatalf("expected 4 bars, got %d", len(bars))
	}
	want := time.Date(2024, 3, 4, 9, 30, 0, 0, ny)
	if !bars[0].Time.Equal(want) || bars[0].High != 101 || bars[0].Volume != 1200 {
		t.Fatalf("unexpected first bar %+v", bars[0])
	}
}

func TestReadBarsCSVColumnOrderAndErrors(t *testing.T) {
	body := "close,volume,datetime,open,high,low\n101,10,2024-03-04T14:30:00Z,100,102,99\n"
	bars, err := ReadBarsCSV(strings.NewReader(body), ny)
	if err != nil || len(bars) != 1 || bars[0].Close != 101 || bars[0].Low != 99 {
		t.Fatalf("free column order: bars=%+v err=%v", bars, err)
	}
	if !bars[0].Time.Equal(time.Date(2024, 3, 4, 9, 30, 0, 0, ny)) {
		t.Fatalf("zoned timestamp misread: %s", bars[0].Time)
	}

	if _, err := ReadBarsCSV(strings.NewReader("time,open,high\n"), ny); err == nil {
		t.Fatalf("expected header error")
	}
	if _, err := ReadBarsCSV(strings.NewReader("time,open,high,low,close,volume\nnope,1,1,1,1,1\n"), ny); err == nil {
		t.Fatalf("expected timestamp error")
	}
}

func TestParseBarTimeUnix(t *testing.T) {
	got, err := ParseBarTime("1709562600", ny)
	if err != nil || !got.Equal(time.Date(2024, 3, 4, 9, 30, 0, 0, ny)) {
		t.Fatalf("unix seconds: %s %v", got, err)
	}
	got, err = ParseBarTime("1709562600000", ny)
	if err != nil || !got.Equal(time.Date(2024, 3, 4, 9, 30, 0, 0, ny)) {
		t.Fatalf("unix millis: %s %v", got, err)
	}
}

func TestResample(t *testing.T) {
	bars, _ := ReadBarsCSV(strings.NewReader(sample), ny)
	out := Resample(bars, 5*time.Minute)
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(out))
	}
	b := out[0]
	if b.Open != 100.5 || b.High != 101 || b.Low != 100 || b.Close != 100.6 || b.Volume != 3200 {
		t.Fatalf("unexpected bucket %+v", b)
	}
	if !out[1].Time.Equal(time.Date(2024, 3, 4, 9, 35, 0, 0, ny)) {
		t.Fatalf("second bucket at %s", out[1].Time)
	}
}

func TestCSVBarStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "SPY.csv", sample)
	writeFile(t, dir, "QQQ_1m.csv", sample)
	writeFile(t, dir, "notes.txt", "ignored")
	s := NewCSVBarStore(dir, ny)
	ctx := context.Background()

	bars, err := s.GetBars(ctx, "spy", time.Time{}, time.Time{}, domrepo.TF1m)
	if err != nil || len(bars) != 4 {
		t.Fatalf("1m: %d bars, err %v", len(bars), err)
	}
	bars, err = s.GetBars(ctx, "QQQ", time.Time{}, time.Time{}, domrepo.TF5m)
	if err != nil || len(bars) != 2 {
		t.Fatalf("5m resampled: %d bars, err %v", len(bars), err)
	}
	from := time.Date(2024, 3, 4, 9, 31, 0, 0, ny)
	to := time.Date(2024, 3, 4, 9, 32, 0, 0, ny)
	bars, _ = s.GetBars(ctx, "SPY", from, to, domrepo.TF1m)
	if len(bars) != 2 {
		t.Fatalf("range filter: got %d bars", len(bars))
	}

	if _, err := s.GetBars(ctx, "IWM", time.Time{}, time.Time{}, domrepo.TF1m); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetBars(ctx, "../etc", time.Time{}, time.Time{}, domrepo.TF1m); err == nil {
		t.Fatalf("path-like symbols must be rejected")
	}

	syms, err := s.Symbols(ctx, domrepo.TF1m)
	if err != nil || len(syms) != 2 || syms[0] != "QQQ" || syms[1] != "SPY" {
		t.Fatalf("symbols: %v %v", syms, err)
	}
}

func TestCachedResultStore(t *testing.T) {
	mem := NewMemoryResultStore()
	c := cache.NewMemoryCache()
	defer c.Close()
	s := NewCachedResultStore(mem, c, time.Minute, nil)
	ctx := context.Background()

	r := &models.BacktestResult{RunID: "run-1", Symbol: "SPY", Metrics: models.Metrics{TotalTrades: 3}}
	if err := s.Save(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "run-1")
	if err != nil || got.Metrics.TotalTrades != 3 {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteTradesCSV(t *testing.T) {
	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	trades := []models.Trade{{
		ID: "t1", Symbol: "SPY", Direction: models.Long, EntryTime: at, EntryPrice: 101.25061,
		Shares: 148, ExitTime: at.Add(time.Hour), ExitPrice: 103.1484, ExitReason: models.ExitTarget3,
		PnL: 185.420651, ORRange: 1,
	}}
	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, trades); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if !strings.Contains(lines[1], ",101.2506,") || !strings.Contains(lines[1], ",185.42,") {
		t.Fatalf("rounding not applied: %s", lines[1])
	}
}
