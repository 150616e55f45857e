package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
	"github.com/geotask/task-service/internal/infrastructure/queue"
)

// errorResponse is the canonical error envelope for all API errors. The
// distance fields are only set when an acknowledgement was made from outside
// the task geofence.
type errorResponse struct {
	Error          string   `json:"error"`
	DistanceMeters *float64 `json:"distance_m,omitempty"`
	Distance       string   `json:"distance,omitempty"`
	RadiusMeters   *float64 `json:"radius_m,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var outside *domain.OutsideGeofenceError
	if errors.As(err, &outside) {
		resp := errorResponse{
			Error:    "you must be inside the task geofence to acknowledge it",
			Distance: geo.FormatDistance(outside.DistanceMeters),
		}
		if resp.Distance != "" {
			d := outside.DistanceMeters
			resp.DistanceMeters = &d
		}
		r := outside.RadiusMeters
		resp.RadiusMeters = &r
		return http.StatusForbidden, resp
	}

	// Known domain errors → deterministic HTTP codes.
	if code, ok := statusFor(err); ok {
		return code, errorResponse{Error: err.Error()}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}

func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrGeofenceNotFound),
		errors.Is(err, domain.ErrNotificationNotFound),
		errors.Is(err, domain.ErrDeviceNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrNotAssigned):
		return http.StatusForbidden, true
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrTokenRevoked):
		return http.StatusUnauthorized, true
	case errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrGeofenceExists),
		errors.Is(err, domain.ErrAlreadyAcknowledged),
		errors.Is(err, domain.ErrTaskConflict):
		return http.StatusConflict, true
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrLocationUnknown),
		errors.Is(err, domain.ErrNoLocation):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, domain.ErrInvalidTask),
		errors.Is(err, domain.ErrInvalidGeofence),
		errors.Is(err, domain.ErrInvalidCoordinate),
		errors.Is(err, domain.ErrInvalidDevice),
		errors.Is(err, domain.ErrLocationRequired):
		return http.StatusBadRequest, true
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}
