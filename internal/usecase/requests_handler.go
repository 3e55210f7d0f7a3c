package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	pkgkafka "OrbLab/pkg/kafka"
	applogger "OrbLab/pkg/logger"
	"OrbLab/pkg/queue"
)

// JobTypeBacktest is the Redis queue message type of a RunRequest.
const JobTypeBacktest = "backtest.run"

// BacktestRequestHandler consumes RunRequest messages from Kafka or the
// Redis queue and runs them.
// Malformed or invalid requests are dropped after logging: retrying cannot
// fix them. Other failures are returned so the consumer retries and finally
// dead-letters the message.
type BacktestRequestHandler struct {
	topic   string
	uc      *BacktestUseCase
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewBacktestRequestHandler(topic string, uc *BacktestUseCase, metrics domrepo.Metrics, l *applogger.Logger) *BacktestRequestHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &BacktestRequestHandler{topic: topic, uc: uc, metrics: metrics, l: l}
}

func (h *BacktestRequestHandler) Topic() string { return h.topic }

func (h *BacktestRequestHandler) Type() string { return JobTypeBacktest }

func (h *BacktestRequestHandler) Handle(ctx context.Context, b []byte) error {
	var req models.RunRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.l.Warn("dropping malformed backtest request", applogger.Error(err))
		return nil
	}
	if req.RunID == "" {
		req.RunID = pkgkafka.RunIDFrom(ctx)
	}
	p, err := RunParamsFrom(req, h.uc.Defaults())
	if err != nil {
		h.metrics.RecordError("consumer_invalid")
		h.l.Warn("dropping invalid backtest request", applogger.String("run_id", req.RunID), applogger.Error(err))
		return nil
	}
	res, err := h.uc.Run(ctx, p)
	switch {
	case err == nil:
		h.l.Info("queued backtest done", applogger.String("run_id", res.RunID), applogger.String("symbol", res.Symbol))
		return nil
	case errors.Is(err, ErrRunInProgress):
		return err
	case isPermanent(err):
		h.l.Warn("queued backtest rejected", applogger.String("run_id", req.RunID), applogger.Error(err))
		return nil
	default:
		return fmt.Errorf("run %s: %w", req.RunID, err)
	}
}

func isPermanent(err error) bool {
	var cfgErr *models.ConfigurationError
	var dataErr *models.DataError
	return errors.As(err, &cfgErr) || errors.As(err, &dataErr) || errors.Is(err, domrepo.ErrNotFound)
}

var (
	_ pkgkafka.MessageHandler = (*BacktestRequestHandler)(nil)
	_ queue.Job               = (*BacktestRequestHandler)(nil)
)
