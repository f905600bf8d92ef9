// Package api exposes computed regime views, volume profiles, confluence
// and position sizing over HTTP, plus the live snapshot WebSocket.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"regime-seeker/internal/provider"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// DataResponse writes data wrapped in an APIResponse with statusCode.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// SuccessResponse writes a 200 response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// BadRequestResponse writes a 400 response.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// NotFoundResponse writes a 404 response.
func NotFoundResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusNotFound, data)
}

// NoContentResponse writes a 204 with no body.
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// UpstreamErrorResponse maps provider failures onto HTTP statuses.
func UpstreamErrorResponse(c echo.Context, err error) error {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, provider.ErrUnknownExchange):
		status = http.StatusBadRequest
	case errors.Is(err, provider.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, provider.ErrRegionBlocked):
		status = http.StatusUnavailableForLegalReasons
	case errors.Is(err, provider.ErrNoData):
		status = http.StatusNotFound
	case errors.Is(err, provider.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	}
	return DataResponse(c, status, []ValidationError{{
		Code:    "ERR_UPSTREAM",
		Message: err.Error(),
		Params:  map[string]interface{}{"reason": provider.Reason(err)},
	}})
}
