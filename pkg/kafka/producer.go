package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	applogger "OrbLab/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// HeaderRunID carries the backtest run id on requests and results.
const HeaderRunID = "run_id"

// Message is one record to publish. Value may be []byte, string or any
// JSON-serialisable value.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers map[string]string
}

// Producer wraps a kafka-go writer.
type Producer struct {
	writer *kafka.Writer
	comp   string
	l      *applogger.Logger
}

// NewProducer creates a producer. Brokers are required.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.Nop()
	}

	bal := kafka.Balancer(&kafka.LeastBytes{})
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	if cfg.Async {
		l := cfg.Logger
		w.Completion = func(msgs []kafka.Message, err error) {
			if err != nil {
				l.Error("kafka async write failed", applogger.Int("messages", len(msgs)), applogger.Error(err))
			}
		}
	}

	producerMetricsOnce.Do(initProducerMetrics)
	return &Producer{writer: w, comp: cfg.Compression, l: cfg.Logger}, nil
}

// Publish sends a single value to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch sends messages to topic in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	now := start.UTC()
	out := make([]kafka.Message, 0, len(messages))
	var size int64
	for i, m := range messages {
		v, err := Encode(m.Value)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, kafka.Message{Topic: topic, Key: m.Key, Value: v, Headers: toHeaders(m.Headers), Time: now})
		size += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, out...)
	observeProducer(topic, p.comp, size, len(out), time.Since(start), err)
	if err != nil {
		p.l.Error("kafka publish failed", applogger.String("topic", topic), applogger.Int("messages", len(out)), applogger.Error(err))
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Encode turns a message value into bytes; anything other than []byte or
// string is marshalled as JSON.
func Encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(h[k])})
	}
	return out
}

// Header returns the first header named key.
func Header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Gzip
	}
}

var (
	producerMessages    *prometheus.CounterVec
	producerBytes       *prometheus.CounterVec
	producerLatency     *prometheus.HistogramVec
	producerMetricsOnce sync.Once
)

func initProducerMetrics() {
	producerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orblab_kafka_producer_messages_total",
		Help: "Messages published to Kafka",
	}, []string{"topic", "compression", "result"})
	producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orblab_kafka_producer_bytes_total",
		Help: "Payload bytes published to Kafka",
	}, []string{"topic"})
	producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orblab_kafka_producer_publish_seconds",
		Help:    "Publish latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
}

func observeProducer(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	if producerMessages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMessages.WithLabelValues(topic, comp, result).Add(float64(count))
	producerBytes.WithLabelValues(topic).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}
