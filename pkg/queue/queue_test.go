package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type recordingJob struct {
	typ      string
	payloads []string
	err      error
}

func (j *recordingJob) Type() string { return j.typ }

func (j *recordingJob) Handle(_ context.Context, payload []byte) error {
	j.payloads = append(j.payloads, string(payload))
	return j.err
}

func newTestQueue(cfg Config) *RedisQueue {
	// never dialled by these tests
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return NewRedisQueue(nil, cfg, client)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{RetryLimit: -1}.withDefaults()
	if c.Workers != 1 || c.RetryLimit != 0 || c.RetryDelay != 10*time.Second || c.PollTimeout != time.Second {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.KeyPrefix != "orblab:queue" {
		t.Fatalf("prefix %q", c.KeyPrefix)
	}
}

func TestKeys(t *testing.T) {
	q := newTestQueue(Config{KeyPrefix: "t:q"})
	if q.queueKey() != "t:q:messages" || q.retryKey() != "t:q:retry" || q.deadLetterKey() != "t:q:dlq" {
		t.Fatalf("keys %s %s %s", q.queueKey(), q.retryKey(), q.deadLetterKey())
	}
}

func TestDecide(t *testing.T) {
	boom := errors.New("boom")
	if decide(nil, 5, 3) != outcomeAck {
		t.Fatal("nil error must ack")
	}
	if decide(boom, 0, 3) != outcomeRetry || decide(boom, 2, 3) != outcomeRetry {
		t.Fatal("failures below the limit must retry")
	}
	if decide(boom, 3, 3) != outcomeDead || decide(boom, 0, 0) != outcomeDead {
		t.Fatal("exhausted failures must dead-letter")
	}
}

func TestRetryDelay(t *testing.T) {
	base := 10 * time.Second
	want := []time.Duration{10 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}
	for attempts, w := range want {
		if got := retryDelay(base, attempts); got != w {
			t.Fatalf("attempts %d: got %v want %v", attempts, got, w)
		}
	}
	if got := retryDelay(base, 40); got != time.Hour {
		t.Fatalf("expected cap, got %v", got)
	}
}

func TestRegister(t *testing.T) {
	q := newTestQueue(Config{})
	if err := q.Register(&recordingJob{}); !errors.Is(err, ErrEmptyType) {
		t.Fatalf("expected ErrEmptyType, got %v", err)
	}
	if err := q.Register(&recordingJob{typ: "backtest.run"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := q.Register(&recordingJob{typ: "backtest.run"}); !errors.Is(err, ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
}

func TestStartAndEnqueueGuards(t *testing.T) {
	q := newTestQueue(Config{})
	if err := q.Start(); !errors.Is(err, ErrNoJobs) {
		t.Fatalf("expected ErrNoJobs, got %v", err)
	}
	if _, err := q.Enqueue(context.Background(), "backtest.run", map[string]string{}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("stop on idle queue: %v", err)
	}
}

func TestProcessAcksSuccessfulJob(t *testing.T) {
	q := newTestQueue(Config{})
	job := &recordingJob{typ: "backtest.run"}
	if err := q.Register(job); err != nil {
		t.Fatal(err)
	}
	q.ctx = context.Background()

	q.process(Message{ID: "m1", Type: "backtest.run", Payload: []byte(`{"symbol":"SPY"}`)})
	if len(job.payloads) != 1 || job.payloads[0] != `{"symbol":"SPY"}` {
		t.Fatalf("payload not delivered: %v", job.payloads)
	}
}
