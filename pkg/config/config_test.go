package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.Port != 8080 || c.Server.ShutdownTimeout != 15*time.Second {
		t.Fatalf("server defaults: %+v", c.Server)
	}
	if c.Data.Source != "csv" || c.Data.Timeframe != "1m" {
		t.Fatalf("data defaults: %+v", c.Data)
	}
	if c.Strategy.ORPeriodMinutes != 15 || c.Strategy.InitialCapital != 100000 || c.Strategy.Timezone != "America/New_York" {
		t.Fatalf("strategy defaults: %+v", c.Strategy)
	}
	if c.Kafka.RequestsTopic != "orb.backtest.requests" || c.Kafka.Consumer.BackoffMin != 200*time.Millisecond {
		t.Fatalf("kafka defaults: %+v", c.Kafka)
	}
	if c.Redis.Queue.Workers != 2 || c.Redis.Queue.KeyPrefix != "orblab:queue" || c.Redis.Queue.RetryDelay != 10*time.Second {
		t.Fatalf("redis queue defaults: %+v", c.Redis.Queue)
	}
	if c.Sweep.TrainDays != 20 || c.Sweep.TestDays != 5 || c.Sweep.MaxCombos != 10000 {
		t.Fatalf("sweep defaults: %+v", c.Sweep)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"bad environment":     "environment: moon\n",
		"bad source":          "data:\n  source: parquet\n",
		"clickhouse off":      "data:\n  source: clickhouse\n",
		"kafka no brokers":    "kafka:\n  enabled: true\n",
		"queue without redis": "redis:\n  queue:\n    enabled: true\n",
		"targets descending":  "strategy:\n  target_1_multiplier: 3\n",
		"bad yaml":            "server: [",
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestSampleConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !c.RateLimit.Enabled || c.Strategy.ScaleOut1Pct != 0.5 {
		t.Fatalf("unexpected sample config %+v", c.RateLimit)
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatal(err)
	}
	env := map[string]string{
		"ORB_DATA_SOURCE":   "ClickHouse",
		"CLICKHOUSE_HOST":   "ch.internal",
		"KAFKA_BROKERS":     "k1:9092, k2:9092,",
		"REDIS_HOST":        "redis.internal",
		"LOG_LEVEL":         "DEBUG",
		"ORB_SWEEP_WORKERS": "nope",
	}
	c.applyEnv(func(k string) string { return env[k] })

	if c.Data.Source != "clickhouse" || !c.ClickHouse.Enabled || c.ClickHouse.Host != "ch.internal" {
		t.Fatalf("clickhouse env: %+v", c.ClickHouse)
	}
	if !c.Kafka.Enabled || strings.Join(c.Kafka.Brokers, ",") != "k1:9092,k2:9092" {
		t.Fatalf("kafka env: %v", c.Kafka.Brokers)
	}
	if !c.Redis.Enabled || c.Log.Level != "debug" || c.Sweep.Workers != 4 {
		t.Fatalf("redis/log/sweep env: redis=%v level=%s workers=%d", c.Redis.Enabled, c.Log.Level, c.Sweep.Workers)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate after env: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
