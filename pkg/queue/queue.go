package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotRunning = errors.New("queue not running")
	ErrNoJob      = errors.New("no job registered for message type")
	ErrEmptyType  = errors.New("message type is empty")
	ErrJobExists  = errors.New("job already registered")
	ErrNoJobs     = errors.New("queue has no jobs")
)

// Job handles one message type. Handle gets the raw JSON payload.
// A nil error acks the message; any other error schedules a retry until
// the retry limit is reached, then the message is dead-lettered.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload []byte) error
}

// Config contains the configuration for the queue.
type Config struct {
	Workers     int           // number of workers
	RetryLimit  int           // attempts after the first before dead-lettering
	RetryDelay  time.Duration // delay before the first retry, doubled per attempt
	PollTimeout time.Duration // BRPOP block time
	KeyPrefix   string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "orblab:queue"
	}
	return c
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Stats reports the queue backlog.
type Stats struct {
	Pending  int64 `json:"pending"`
	Retrying int64 `json:"retrying"`
	Dead     int64 `json:"dead"`
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRetry
	outcomeDead
)

// decide maps a handler result to what happens with the message.
func decide(err error, attempts, limit int) outcome {
	switch {
	case err == nil:
		return outcomeAck
	case attempts < limit:
		return outcomeRetry
	default:
		return outcomeDead
	}
}

// retryDelay doubles base for every attempt already made, capped at one hour.
func retryDelay(base time.Duration, attempts int) time.Duration {
	const max = time.Hour
	d := base
	for i := 1; i < attempts && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
