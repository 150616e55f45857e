package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/ports"
)

type DeviceHandler struct {
	service ports.DeviceService
}

func NewDeviceHandler(service ports.DeviceService) *DeviceHandler {
	return &DeviceHandler{service: service}
}

type registerDeviceRequest struct {
	Token    string `json:"token"    validate:"required,max=512"`
	Platform string `json:"platform" validate:"required"`
}

type unregisterDeviceRequest struct {
	Token string `json:"token" validate:"required"`
}

type unregisterDeviceResponse struct {
	Removed bool `json:"removed"`
}

// Register handles POST /api/devices/register.
//
// @Summary      Register a push token for this device
// @Tags         devices
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      registerDeviceRequest  true  "Token and platform (ios, android, web)"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  map[string]string
// @Router       /api/devices/register [post]
func (h *DeviceHandler) Register(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req registerDeviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if err := h.service.Register(c.Request().Context(), actor, req.Token, req.Platform); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "device registered"})
}

// Unregister handles DELETE /api/devices/unregister.
//
// @Summary      Remove a push token
// @Tags         devices
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      unregisterDeviceRequest  true  "Token"
// @Success      200   {object}  unregisterDeviceResponse
// @Router       /api/devices/unregister [delete]
func (h *DeviceHandler) Unregister(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req unregisterDeviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	removed, err := h.service.Unregister(c.Request().Context(), actor, req.Token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, unregisterDeviceResponse{Removed: removed})
}

// Tokens handles GET /api/devices/tokens.
//
// @Summary      List my push tokens
// @Tags         devices
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.DeviceToken
// @Router       /api/devices/tokens [get]
func (h *DeviceHandler) Tokens(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	tokens, err := h.service.List(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	if tokens == nil {
		tokens = []*domain.DeviceToken{}
	}
	return c.JSON(http.StatusOK, tokens)
}
