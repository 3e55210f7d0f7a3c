package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	applogger "OrbLab/pkg/logger"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVBarStore reads bars from <dir>/<SYMBOL>_<tf>.csv or <dir>/<SYMBOL>.csv.
// Timestamps without a zone are read in loc. A 5m request falls back to
// resampling the 1m file when no 5m file exists.
type CSVBarStore struct {
	dir string
	loc *time.Location
	l   *applogger.Logger
}

func NewCSVBarStore(dir string, loc *time.Location) *CSVBarStore {
	if loc == nil {
		loc = time.UTC
	}
	return &CSVBarStore{dir: dir, loc: loc, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CSVBarStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CSVBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Bar, error) {
	start := time.Now()
	path, native, err := s.resolve(symbol, tf)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars: %w", err)
	}
	defer f.Close()

	bars, err := ReadBarsCSV(f, s.loc)
	if err != nil {
		s.l.Error("csv get_bars parse error", applogger.String("path", path), applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if !native {
		bars = Resample(bars, tf.Duration())
	}
	bars = FilterRange(bars, from, to)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.l.Info("csv get_bars ok",
		applogger.String("path", path),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return bars, nil
}

// resolve picks the file for symbol and reports whether it already has tf bars.
func (s *CSVBarStore) resolve(symbol string, tf domrepo.Timeframe) (string, bool, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" || strings.ContainsAny(sym, `/\`) {
		return "", false, fmt.Errorf("invalid symbol %q", symbol)
	}
	candidates := []struct {
		name   string
		native bool
	}{
		{fmt.Sprintf("%s_%s.csv", sym, tf), true},
		{fmt.Sprintf("%s_%s.csv", sym, domrepo.TF1m), tf == domrepo.TF1m},
		{sym + ".csv", tf == domrepo.TF1m},
	}
	for _, c := range candidates {
		p := filepath.Join(s.dir, c.name)
		if _, err := os.Stat(p); err == nil {
			return p, c.native, nil
		}
	}
	return "", false, fmt.Errorf("no bar file for %s in %s: %w", sym, s.dir, domrepo.ErrNotFound)
}

func (s *CSVBarStore) Symbols(_ context.Context, _ domrepo.Timeframe) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list bar files: %w", err)
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".csv") {
			continue
		}
		sym := strings.TrimSuffix(name, filepath.Ext(name))
		if i := strings.LastIndex(sym, "_"); i > 0 {
			sym = sym[:i]
		}
		sym = strings.ToUpper(sym)
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04",
}

// ParseBarTime reads RFC3339, common naive layouts or unix seconds/millis.
func ParseBarTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).In(loc), nil
		}
		return time.Unix(n, 0).In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ReadBarsCSV decodes a header-led OHLCV file. UTF-8 and UTF-16 byte order
// marks are honored. Column order is free; the time column may be named
// timestamp, datetime, date or time.
func ReadBarsCSV(r io.Reader, loc *time.Location) ([]models.Bar, error) {
	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(dec)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var out []models.Bar
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := parseRecord(rec, idx, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, b)
	}
	return out, nil
}

type columns struct{ ts, open, high, low, close, volume int }

func columnIndex(header []string) (columns, error) {
	c := columns{-1, -1, -1, -1, -1, -1}
	for i, h := range header {
		switch strings.ToLower(strings.Trim(strings.TrimSpace(h), `"`)) {
		case "timestamp", "datetime", "date", "time", "ts":
			if c.ts < 0 {
				c.ts = i
			}
		case "open", "o":
			c.open = i
		case "high", "h":
			c.high = i
		case "low", "l":
			c.low = i
		case "close", "c":
			c.close = i
		case "volume", "vol", "v":
			c.volume = i
		}
	}
	if c.ts < 0 || c.open < 0 || c.high < 0 || c.low < 0 || c.close < 0 || c.volume < 0 {
		return c, fmt.Errorf("header %v lacks timestamp/open/high/low/close/volume", header)
	}
	return c, nil
}

func parseRecord(rec []string, c columns, loc *time.Location) (models.Bar, error) {
	var b models.Bar
	need := max(c.ts, c.open, c.high, c.low, c.close, c.volume)
	if len(rec) <= need {
		return b, fmt.Errorf("expected at least %d fields, got %d", need+1, len(rec))
	}
	t, err := ParseBarTime(rec[c.ts], loc)
	if err != nil {
		return b, err
	}
	b.Time = t
	fields := []struct {
		dst *float64
		i   int
	}{{&b.Open, c.open}, {&b.High, c.high}, {&b.Low, c.low}, {&b.Close, c.close}, {&b.Volume, c.volume}}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[f.i]), 64)
		if err != nil {
			return b, fmt.Errorf("column %d: %w", f.i, err)
		}
		*f.dst = v
	}
	return b, nil
}

// Resample aggregates bars into buckets of width d aligned to the epoch.
// Input must be ascending.
func Resample(bars []models.Bar, d time.Duration) []models.Bar {
	if d <= time.Minute || len(bars) == 0 {
		return bars
	}
	out := make([]models.Bar, 0, len(bars)/int(d/time.Minute)+1)
	for _, b := range bars {
		bucket := b.Time.Truncate(d)
		if n := len(out); n > 0 && out[n-1].Time.Equal(bucket) {
			cur := &out[n-1]
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		out = append(out, models.Bar{Time: bucket, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	return out
}

// FilterRange keeps bars with from <= time <= to. Zero bounds are open.
func FilterRange(bars []models.Bar, from, to time.Time) []models.Bar {
	if from.IsZero() && to.IsZero() {
		return bars
	}
	out := bars[:0:0]
	for _, b := range bars {
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && b.Time.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

var _ domrepo.BarStore = (*CSVBarStore)(nil)
