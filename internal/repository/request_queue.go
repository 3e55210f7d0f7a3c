package repository

import (
	"context"
	"fmt"

	"OrbLab/internal/domain/models"
	"OrbLab/internal/domain/repository"
	pkgkafka "OrbLab/pkg/kafka"
	"OrbLab/pkg/queue"
)

// BatchPublisher is the part of the Kafka producer the request queue needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaRequestQueue publishes run requests keyed by symbol.
type KafkaRequestQueue struct {
	producer BatchPublisher
	topic    string
}

func NewKafkaRequestQueue(producer BatchPublisher, topic string) *KafkaRequestQueue {
	return &KafkaRequestQueue{producer: producer, topic: topic}
}

func (q *KafkaRequestQueue) Enqueue(ctx context.Context, req *models.RunRequest) error {
	msg := pkgkafka.Message{
		Key:     []byte(req.Symbol),
		Value:   req,
		Headers: map[string]string{pkgkafka.HeaderRunID: req.RunID},
	}
	return q.producer.PublishBatch(ctx, q.topic, []pkgkafka.Message{msg})
}

// JobEnqueuer is the part of the Redis queue the request queue needs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// RedisRequestQueue pushes run requests onto the Redis job queue.
type RedisRequestQueue struct {
	q       JobEnqueuer
	msgType string
}

func NewRedisRequestQueue(q JobEnqueuer, msgType string) *RedisRequestQueue {
	return &RedisRequestQueue{q: q, msgType: msgType}
}

func (r *RedisRequestQueue) Enqueue(ctx context.Context, req *models.RunRequest) error {
	if _, err := r.q.Enqueue(ctx, r.msgType, req); err != nil {
		return fmt.Errorf("enqueue %s: %w", req.RunID, err)
	}
	return nil
}

var (
	_ repository.RequestQueue = (*KafkaRequestQueue)(nil)
	_ repository.RequestQueue = (*RedisRequestQueue)(nil)
	_ JobEnqueuer             = (*queue.RedisQueue)(nil)
)
