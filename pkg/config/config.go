package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"OrbLab/internal/domain/models"
	"OrbLab/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"5s"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Data struct {
		Source    string `yaml:"source" default:"csv" validate:"oneof=csv clickhouse"`
		CSVDir    string `yaml:"csv_dir" default:"data"`
		Timeframe string `yaml:"timeframe" default:"1m" validate:"oneof=1m 5m"`
	} `yaml:"data"`
	Strategy models.Params `yaml:"strategy"`
	Sweep    struct {
		Workers     int           `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
		Top         int           `yaml:"top" default:"10" validate:"gte=1"`
		TrainDays   int           `yaml:"train_days" default:"20" validate:"gte=1"`
		TestDays    int           `yaml:"test_days" default:"5" validate:"gte=1"`
		LockTimeout time.Duration `yaml:"lock_timeout" default:"10m"`
		MaxCombos   int           `yaml:"max_combos" default:"10000" validate:"gte=1,lte=1000000"`
	} `yaml:"sweep"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		ResultsTopic  string   `yaml:"results_topic" default:"orb.backtest.results"`
		RequestsTopic string   `yaml:"requests_topic" default:"orb.backtest.requests"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"orblab-backtests"`
			Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"orb.backtest.requests.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"orb"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Host      string        `yaml:"host" default:"localhost"`
		Port      int           `yaml:"port" default:"6379"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		PoolSize  int           `yaml:"pool_size" default:"10"`
		Prefix    string        `yaml:"prefix" default:"orblab"`
		MemoryTTL time.Duration `yaml:"memory_ttl" default:"30s"`
		ResultTTL time.Duration `yaml:"result_ttl" default:"24h"`
		Queue     struct {
			Enabled     bool          `yaml:"enabled"`
			Workers     int           `yaml:"workers" default:"2" validate:"min=1,max=64"`
			RetryLimit  int           `yaml:"retry_limit" default:"3" validate:"min=0"`
			RetryDelay  time.Duration `yaml:"retry_delay" default:"10s"`
			PollTimeout time.Duration `yaml:"poll_timeout" default:"1s"`
			KeyPrefix   string        `yaml:"key_prefix" default:"orblab:queue"`
		} `yaml:"queue"`
	} `yaml:"redis"`
	RateLimit struct {
		Enabled      bool          `yaml:"enabled"`
		Capacity     float64       `yaml:"capacity" default:"5" validate:"gte=1"`
		RefillPerSec float64       `yaml:"refill_per_sec" default:"0.2" validate:"gte=0"`
		PruneIdle    time.Duration `yaml:"prune_idle" default:"10m"`
	} `yaml:"ratelimit"`
}

var validate = validator.New()

// Load reads a YAML file, fills unset fields from the default tags and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes the same way Load does.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ORB_DATA_SOURCE"); v != "" {
		c.Data.Source = strings.ToLower(v)
	}
	if v := getenv("ORB_CSV_DIR"); v != "" {
		c.Data.CSVDir = v
	}
	if v := getenv("ORB_SWEEP_WORKERS"); v != "" {
		c.Sweep.Workers = util.ParseIntDefault(v, c.Sweep.Workers)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = len(c.Kafka.Brokers) > 0
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate checks field ranges, the strategy parameters and the rules that
// tie sections together.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.Data.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("data.source is clickhouse but clickhouse.enabled is false")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.ResultsTopic == c.Kafka.RequestsTopic {
		return fmt.Errorf("kafka.results_topic and kafka.requests_topic must differ")
	}
	if c.Redis.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("redis.queue needs redis.enabled")
	}
	return nil
}
