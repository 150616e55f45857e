package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
)

// Context keys written by the Auth middleware.
const (
	CtxUserID    = "user_id"
	CtxEmail     = "email"
	CtxRole      = "role"
	CtxTokenID   = "jti"
	CtxExpiresAt = "exp"
)

// ctxActor builds the caller from the claims the Auth middleware injected.
// Both subject and role must be present; their absence means the route was
// mounted without the middleware.
func ctxActor(c echo.Context) (domain.Actor, error) {
	userID, _ := c.Get(CtxUserID).(string)
	role, _ := c.Get(CtxRole).(string)
	if userID == "" || role == "" {
		return domain.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	email, _ := c.Get(CtxEmail).(string)
	return domain.Actor{UserID: userID, Email: email, Role: role}, nil
}

// ctxToken returns the id and expiry of the bearer token.
func ctxToken(c echo.Context) (string, time.Time, error) {
	jti, _ := c.Get(CtxTokenID).(string)
	exp, _ := c.Get(CtxExpiresAt).(time.Time)
	if jti == "" || exp.IsZero() {
		return "", time.Time{}, echo.NewHTTPError(http.StatusUnauthorized, "token missing id or expiry")
	}
	return jti, exp, nil
}

// queryCoordinate reads an optional ?lat=&lng= pair. Both or neither must be
// given; a half-specified or out-of-range pair is a client error.
func queryCoordinate(c echo.Context) (*geo.Coordinate, error) {
	rawLat := strings.TrimSpace(c.QueryParam("lat"))
	rawLng := strings.TrimSpace(c.QueryParam("lng"))
	if rawLat == "" && rawLng == "" {
		return nil, nil
	}
	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lng, errLng := strconv.ParseFloat(rawLng, 64)
	if errLat != nil || errLng != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "lat and lng must both be numbers")
	}
	coord := geo.Coordinate{Lat: lat, Lng: lng}
	if !coord.Valid() {
		return nil, domain.ErrInvalidCoordinate
	}
	return &coord, nil
}

func queryInt(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return def
	}
	return v
}
