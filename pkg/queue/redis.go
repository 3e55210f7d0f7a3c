package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"OrbLab/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a list-backed job queue. Messages are LPUSHed onto
// <prefix>:messages and BRPOPed by the workers. Failed messages wait in the
// <prefix>:retry sorted set scored by due time; exhausted ones land in
// <prefix>:dlq.
type RedisQueue struct {
	logger    *logger.Logger
	cfg       Config
	client    *redis.Client
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewRedisQueue creates a queue on client. Register jobs before Start.
func NewRedisQueue(lgr *logger.Logger, cfg Config, client *redis.Client) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &RedisQueue{
		logger: lgr,
		cfg:    cfg.withDefaults(),
		client: client,
		jobs:   make(map[string]Job),
	}
}

// Register adds a job for its message type.
func (r *RedisQueue) Register(job Job) error {
	if job.Type() == "" {
		return ErrEmptyType
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Type())
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("type", job.Type()))
	return nil
}

// Start pings Redis and launches the workers and the retry pump.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return fmt.Errorf("queue already running")
	}
	if len(r.jobs) == 0 {
		return ErrNoJobs
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.isRunning = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryPump()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("prefix", r.cfg.KeyPrefix))
	return nil
}

// Stop cancels in-flight handlers and waits for the workers.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// Enqueue stores payload as JSON under msgType and returns the message id.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.isRunning
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return "", ErrNotRunning
	}
	if !known {
		return "", fmt.Errorf("%w: %s", ErrNoJob, msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: raw, EnqueuedAt: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

// Stats returns the current list and set sizes.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.queueKey())
	retrying := pipe.ZCard(ctx, r.retryKey())
	dead := pipe.LLen(ctx, r.deadLetterKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Retrying: retrying.Val(), Dead: dead.Val()}, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			r.processNext()
		}
	}
}

func (r *RedisQueue) processNext() {
	result, err := r.client.BRPop(r.ctx, r.cfg.PollTimeout, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("dropping undecodable message", logger.Error(err))
		return
	}
	r.process(msg)
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(msg, ErrNoJob)
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, msg.Payload)
	if errors.Is(err, context.Canceled) && r.ctx.Err() != nil {
		// shutting down: put it back for the next process
		r.requeue(msg)
		return
	}

	switch decide(err, msg.Attempts, r.cfg.RetryLimit) {
	case outcomeAck:
		r.logger.Debug("message done",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Duration("elapsed", time.Since(start)))
	case outcomeRetry:
		msg.Attempts++
		msg.LastError = err.Error()
		due := time.Now().Add(retryDelay(r.cfg.RetryDelay, msg.Attempts))
		r.scheduleRetry(msg, due)
		r.logger.Warn("message failed, retry scheduled",
			logger.String("id", msg.ID),
			logger.Int("attempt", msg.Attempts),
			logger.Time("retry_at", due),
			logger.Error(err))
	case outcomeDead:
		r.logger.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Error(err))
		r.deadLetter(msg, err)
	}
}

func (r *RedisQueue) requeue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.RPush(ctx, r.queueKey(), data).Err(); err != nil {
		r.logger.Error("requeue on shutdown", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) scheduleRetry(msg Message, due time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(due.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(msg Message, cause error) {
	if cause != nil {
		msg.LastError = cause.Error()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), data).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryPump() {
	defer r.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.moveDueRetries()
		}
	}
}

// moveDueRetries pushes due retries back onto the main list. ZREM decides
// ownership so two replicas never move the same member.
func (r *RedisQueue) moveDueRetries() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		if r.ctx.Err() != nil {
			return
		}
		n, err := r.client.ZRem(r.ctx, r.retryKey(), member).Result()
		if err != nil || n == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.queueKey(), member).Err(); err != nil {
			r.logger.Error("move retry to queue", logger.Error(err))
			r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(time.Now().Unix()), Member: member})
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.cfg.KeyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.cfg.KeyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.cfg.KeyPrefix + ":dlq" }
