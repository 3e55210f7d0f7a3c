package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin structured logger over zerolog.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

// New builds a logger writing to cfg.Output.
func New(cfg *Config) (*Logger, error) {
	w, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	return NewWithWriter(cfg, w)
}

// NewWithWriter builds a logger writing to w; Output is ignored.
func NewWithWriter(cfg *Config, w io.Writer) (*Logger, error) {
	lvl := strings.ToLower(strings.TrimSpace(cfg.Level))
	if lvl == "" {
		lvl = "info"
	}
	level, err := zerolog.ParseLevel(lvl)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	}

	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()
	return &Logger{zl: zl}, nil
}

func openOutput(out string) (io.Writer, error) {
	switch out {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return f, nil
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger carrying fields on every event.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.context(ctx)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), msg, fields) }

func (l *Logger) emit(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		f.event(e)
	}
	e.Msg(msg)
}

type kind uint8

const (
	kindString kind = iota
	kindInt
	kindFloat
	kindBool
	kindTime
	kindErr
	kindAny
)

// Field is one typed key/value pair.
type Field struct {
	Key string
	k   kind
	s   string
	i   int64
	f   float64
	t   time.Time
	v   interface{}
}

func (f Field) event(e *zerolog.Event) {
	switch f.k {
	case kindString:
		e.Str(f.Key, f.s)
	case kindInt:
		e.Int64(f.Key, f.i)
	case kindFloat:
		e.Float64(f.Key, f.f)
	case kindBool:
		e.Bool(f.Key, f.i != 0)
	case kindTime:
		e.Time(f.Key, f.t)
	case kindErr:
		if err, _ := f.v.(error); err != nil {
			e.AnErr(f.Key, err)
		}
	default:
		e.Interface(f.Key, f.v)
	}
}

func (f Field) context(c zerolog.Context) zerolog.Context {
	switch f.k {
	case kindString:
		return c.Str(f.Key, f.s)
	case kindInt:
		return c.Int64(f.Key, f.i)
	case kindFloat:
		return c.Float64(f.Key, f.f)
	case kindBool:
		return c.Bool(f.Key, f.i != 0)
	case kindTime:
		return c.Time(f.Key, f.t)
	case kindErr:
		if err, _ := f.v.(error); err != nil {
			return c.AnErr(f.Key, err)
		}
		return c
	default:
		return c.Interface(f.Key, f.v)
	}
}

func String(key, value string) Field { return Field{Key: key, k: kindString, s: value} }

func Strings(key string, value []string) Field { return String(key, strings.Join(value, ", ")) }

func Int(key string, value int) Field { return Field{Key: key, k: kindInt, i: int64(value)} }

func Int64(key string, value int64) Field { return Field{Key: key, k: kindInt, i: value} }

func Float64(key string, value float64) Field { return Field{Key: key, k: kindFloat, f: value} }

func Bool(key string, value bool) Field {
	f := Field{Key: key, k: kindBool}
	if value {
		f.i = 1
	}
	return f
}

func Time(key string, value time.Time) Field { return Field{Key: key, k: kindTime, t: value} }

// Duration logs value in whole milliseconds.
func Duration(key string, value time.Duration) Field { return Int64(key, value.Milliseconds()) }

// Error logs err under "error"; a nil error adds nothing.
func Error(err error) Field { return Field{Key: zerolog.ErrorFieldName, k: kindErr, v: err} }

func Any(key string, value interface{}) Field { return Field{Key: key, k: kindAny, v: value} }
