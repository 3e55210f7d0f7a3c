package api

import (
	"context"
	"errors"
	"net/http"

	models "OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	"OrbLab/internal/usecase"
	xhttp "OrbLab/pkg/http"
)

// toAppError maps use case errors onto API error codes.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	var cfgErr *models.ConfigurationError
	var dataErr *models.DataError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &cfgErr):
		return xhttp.NewAppError("ERR_CONFIG", cfgErr.Field, cfgErr.Error(), http.StatusBadRequest).WithError(err)
	case errors.As(err, &dataErr):
		return xhttp.NewAppError("ERR_DATA", "", dataErr.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError("backtest or bar data not found").WithError(err)
	case errors.Is(err, usecase.ErrRunInProgress):
		return xhttp.ConflictError("an identical backtest is already running").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.ServiceUnavailableError("backtest timed out").WithError(err)
	default:
		return xhttp.InternalError("backtest failed").WithError(err)
	}
}
