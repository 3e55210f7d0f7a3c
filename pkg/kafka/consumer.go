package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	applogger "OrbLab/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics in one group and fans messages out to a
// bounded worker pool. Messages of a partition are handled one at a time.
// A message that still fails after RetryMax retries goes to the DLQ topic
// when one is configured; its offset is committed either way once it has
// been dead-lettered.
type Consumer struct {
	cfg      *ConsumerConfig
	l        *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	msgs     chan *delivery
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	partMu sync.Mutex
	parts  map[partKey]*sync.Mutex
}

type delivery struct {
	topic string
	km    kafka.Message
}

type partKey struct {
	topic     string
	partition int
}

// NewConsumer creates a consumer. Brokers are required.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "orblab",
		StartOffset: "earliest",
		WorkerCount: 1,
		BufferSize:  16,
		RetryMax:    3,
		BackoffMin:  100 * time.Millisecond,
		BackoffMax:  5 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	l := cfg.Logger
	if l == nil {
		l = applogger.Nop()
	}

	c := &Consumer{
		cfg:      cfg,
		l:        l,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
		msgs:     make(chan *delivery, cfg.BufferSize),
		stop:     make(chan struct{}),
		parts:    make(map[partKey]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	consumerMetricsOnce.Do(initConsumerMetrics)
	return c, nil
}

// RegisterHandler registers h for its topic. Must be called before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	topic := h.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.l.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = h
}

// WithConsumerHook sets lifecycle hooks around message handling.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start launches one reader per registered topic and the worker pool.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	start := kafka.FirstOffset
	if c.cfg.StartOffset == "latest" {
		start = kafka.LastOffset
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	for topic, r := range c.readers {
		c.wg.Add(1)
		go c.fetch(topic, r)
	}
	c.l.Info("kafka consumer started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount),
	)
	return nil
}

// Stop signals readers and workers and waits for in-flight messages until ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.l.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		err = c.wait(ctx)
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.l.Warn("kafka dlq close failed", applogger.Error(cerr))
			}
		}
		if err == nil {
			c.l.Info("kafka consumer stopped")
		}
	})
	return err
}

func (c *Consumer) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.wg.Done()
	for !c.stopping() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		km, err := r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !c.stopping() {
				c.l.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
				time.Sleep(250 * time.Millisecond)
			}
			continue
		}
		select {
		case c.msgs <- &delivery{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgs)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()
	for {
		select {
		case d := <-c.msgs:
			c.process(d)
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) process(d *delivery) {
	h, ok := c.handlers[d.topic]
	if !ok {
		return
	}
	start := time.Now()
	pl := c.partitionLock(d.topic, d.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(h, d)
	result := "ok"
	if err != nil {
		result = "error"
		c.l.Error("kafka message failed",
			applogger.String("topic", d.topic),
			applogger.Int("partition", d.km.Partition),
			applogger.Int64("offset", d.km.Offset),
			applogger.Error(err),
		)
		if c.deadLetter(d, err) {
			result = "dlq"
		}
	}
	if err == nil || result == "dlq" {
		if r := c.readers[d.topic]; r != nil {
			c.commit(r, d.km)
		}
	}
	consumerHandled.WithLabelValues(d.topic, result).Inc()
	consumerLatency.WithLabelValues(d.topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(h MessageHandler, d *delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	for attempt := 1; ; attempt++ {
		ctx, km, data, berr := c.hook.BeforeHandle(context.Background(), d.topic, d.km, d.km.Value)
		if berr != nil {
			c.hook.OnError(ctx, d.topic, km, data, berr)
			return berr
		}
		err = h.Handle(ctx, data)
		c.hook.AfterHandle(ctx, d.topic, km, data, err)
		if err == nil {
			return nil
		}
		c.hook.OnError(ctx, d.topic, km, data, err)
		if attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(Backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stop:
			return err
		}
	}
}

func (c *Consumer) deadLetter(d *delivery, cause error) bool {
	if c.dlq == nil {
		return false
	}
	headers := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(d.topic)},
		{Key: "error", Value: []byte(cause.Error())},
	}, d.km.Headers...)
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     d.km.Key,
		Value:   d.km.Value,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
	if err != nil {
		c.l.Error("kafka dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(r *kafka.Reader, km kafka.Message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(Backoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.l.Error("kafka commit failed", applogger.String("topic", km.Topic), applogger.Int64("offset", km.Offset), applogger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()
	k := partKey{topic, partition}
	m, ok := c.parts[k]
	if !ok {
		m = &sync.Mutex{}
		c.parts[k] = m
	}
	return m
}

// Backoff returns an exponential delay for attempt (1-based) capped at max,
// with up to 50% jitter taken off.
func Backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	d := max
	if attempt <= 30 {
		if exp := min << uint(attempt-1); exp > 0 && exp < max {
			d = exp
		}
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

var (
	consumerQueueDepth  *prometheus.GaugeVec
	consumerHandled     *prometheus.CounterVec
	consumerLatency     *prometheus.HistogramVec
	consumerMetricsOnce sync.Once
	consumerRegisterer  prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetConsumerMetricsRegisterer must be called before the first NewConsumer.
func SetConsumerMetricsRegisterer(reg prometheus.Registerer) {
	if reg != nil {
		consumerRegisterer = reg
	}
}

func initConsumerMetrics() {
	consumerQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orblab_kafka_consumer_queue_depth",
		Help: "Messages waiting for a worker",
	}, []string{"topic"})
	consumerHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orblab_kafka_consumer_messages_total",
		Help: "Messages handled by result",
	}, []string{"topic", "result"})
	consumerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orblab_kafka_consumer_handle_seconds",
		Help:    "Handling time per message, retries included",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"topic"})
	consumerRegisterer.MustRegister(consumerQueueDepth, consumerHandled, consumerLatency)
}
