package api

import (
	"context"
	"net/http"
	"time"

	models "OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	"OrbLab/internal/service/metrics"
	"OrbLab/internal/service/ratelimit"
	"OrbLab/internal/services/performance"
	"OrbLab/internal/usecase"
	xhttp "OrbLab/pkg/http"
	xlogger "OrbLab/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// BacktestEchoHandler serves the backtest, sweep and walk-forward endpoints.
type BacktestEchoHandler struct {
	logger   *xlogger.Logger
	backtest *usecase.BacktestUseCase
	sweep    *usecase.SweepUseCase
	queue    domrepo.RequestQueue
	limiter  *ratelimit.Limiter
}

func NewBacktestEchoHandler(logger *xlogger.Logger, backtest *usecase.BacktestUseCase, sweep *usecase.SweepUseCase) *BacktestEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &BacktestEchoHandler{logger: logger, backtest: backtest, sweep: sweep}
}

// SetQueue enables POST /api/backtests/async.
func (h *BacktestEchoHandler) SetQueue(q domrepo.RequestQueue) { h.queue = q }

// SetLimiter enables per-client rate limiting of the POST routes.
func (h *BacktestEchoHandler) SetLimiter(l *ratelimit.Limiter) { h.limiter = l }

func (h *BacktestEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/backtests", h.Run, h.rateLimit("backtest_run"))
	g.POST("/backtests/async", h.RunAsync, h.rateLimit("backtest_async"))
	g.GET("/backtests/:id", h.Get)
	g.GET("/backtests/:id/report", h.Report)
	g.POST("/sweeps", h.Sweep, h.rateLimit("sweep"))
	g.POST("/walkforward", h.WalkForward, h.rateLimit("walkforward"))
}

func (h *BacktestEchoHandler) Run(c echo.Context) error {
	defer observe("backtest_run", time.Now())
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "backtest_run", verr)
	}
	p, err := usecase.RunParamsFrom(*req, h.backtest.Defaults())
	if err != nil {
		return h.fail(c, "backtest_run", err)
	}

	res, err := h.backtest.Run(c.Request().Context(), p)
	if err != nil {
		h.logger.Error("backtest usecase error", xlogger.String("symbol", p.Symbol), xlogger.Error(err))
		return h.fail(c, "backtest_run", err)
	}
	return xhttp.SuccessResponse(c, res.Summary())
}

// RunAsync queues the request and answers with the run id to poll.
func (h *BacktestEchoHandler) RunAsync(c echo.Context) error {
	defer observe("backtest_async", time.Now())
	if h.queue == nil {
		return h.fail(c, "backtest_async", xhttp.ServiceUnavailableError("async backtests are disabled"))
	}
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "backtest_async", verr)
	}
	// the consumer drops invalid requests, so reject them before queueing
	p, err := usecase.RunParamsFrom(*req, h.backtest.Defaults())
	if err == nil {
		err = p.Params.Validate()
	}
	if err != nil {
		return h.fail(c, "backtest_async", err)
	}
	req.RunID = uuid.NewString()

	if err := h.queue.Enqueue(c.Request().Context(), req); err != nil {
		h.logger.Error("backtest enqueue error", xlogger.String("run_id", req.RunID), xlogger.Error(err))
		return h.fail(c, "backtest_async", xhttp.ServiceUnavailableError("could not queue backtest").WithError(err))
	}
	return xhttp.AcceptedResponse(c, map[string]string{"run_id": req.RunID, "status": "queued"})
}

func (h *BacktestEchoHandler) Get(c echo.Context) error {
	defer observe("backtest_get", time.Now())
	req := &models.RunIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "backtest_get", verr)
	}
	res, err := h.backtest.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "backtest_get", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res.Summary())
}

// Report returns the markdown report of a stored run.
func (h *BacktestEchoHandler) Report(c echo.Context) error {
	defer observe("backtest_report", time.Now())
	req := &models.RunIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "backtest_report", verr)
	}
	res, err := h.backtest.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "backtest_report", err)
	}
	report := res.Report
	if report == "" {
		report = performance.Report(res.Metrics, res.Symbol, res.FinishedAt)
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(report))
}

func (h *BacktestEchoHandler) Sweep(c echo.Context) error {
	defer observe("sweep", time.Now())
	req := &models.SweepRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "sweep", verr)
	}
	p, err := usecase.SweepParamsFrom(*req, h.backtest.Defaults())
	if err != nil {
		return h.fail(c, "sweep", err)
	}
	res, err := h.sweep.Grid(c.Request().Context(), p)
	if err != nil {
		h.logger.Error("sweep usecase error", xlogger.String("symbol", p.Symbol), xlogger.Error(err))
		return h.fail(c, "sweep", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *BacktestEchoHandler) WalkForward(c echo.Context) error {
	defer observe("walkforward", time.Now())
	req := &models.WalkForwardRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "walkforward", verr)
	}
	p, err := usecase.WalkForwardParamsFrom(*req, h.backtest.Defaults())
	if err != nil {
		return h.fail(c, "walkforward", err)
	}
	res, err := h.sweep.WalkForward(c.Request().Context(), p)
	if err != nil {
		h.logger.Error("walkforward usecase error", xlogger.String("symbol", p.Symbol), xlogger.Error(err))
		return h.fail(c, "walkforward", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *BacktestEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.backtest.Health(ctx); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *BacktestEchoHandler) rateLimit(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
				metrics.RateLimited.WithLabelValues(endpoint).Inc()
				return h.fail(c, endpoint, xhttp.TooManyRequestsError("too many backtest requests"))
			}
			return next(c)
		}
	}
}

func (h *BacktestEchoHandler) badRequest(c echo.Context, endpoint string, verr []xhttp.ValidationError) error {
	metrics.EndpointErrors.WithLabelValues(endpoint, "ERR_VALIDATION").Inc()
	return xhttp.BadRequestResponse(c, verr)
}

func (h *BacktestEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.EndpointErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	return xhttp.AppErrorResponse(c, appErr)
}

func observe(endpoint string, start time.Time) {
	metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
