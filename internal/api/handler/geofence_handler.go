package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
	"github.com/geotask/task-service/internal/core/ports"
)

// GeofenceHandler exposes the caller's geofence registry.
type GeofenceHandler struct {
	service ports.GeofenceService
}

func NewGeofenceHandler(service ports.GeofenceService) *GeofenceHandler {
	return &GeofenceHandler{service: service}
}

type regionRequest struct {
	Identifier    string  `json:"identifier"      validate:"required,max=100"`
	Lat           float64 `json:"lat"             validate:"latitude"`
	Lng           float64 `json:"lng"             validate:"longitude"`
	RadiusM       float64 `json:"radius_m"        validate:"gt=0"`
	NotifyOnEnter bool    `json:"notify_on_enter"`
	NotifyOnExit  bool    `json:"notify_on_exit"`
}

func (r regionRequest) region() geo.GeofenceRegion {
	return geo.GeofenceRegion{
		Identifier:    r.Identifier,
		Center:        geo.Coordinate{Lat: r.Lat, Lng: r.Lng},
		RadiusMeters:  r.RadiusM,
		NotifyOnEnter: r.NotifyOnEnter,
		NotifyOnExit:  r.NotifyOnExit,
	}
}

type geofenceStatusResponse struct {
	Geofence  *domain.Geofence  `json:"geofence"`
	Proximity proximityResponse `json:"proximity"`
}

// Create handles POST /api/geofences.
//
// @Summary      Register a geofence
// @Tags         geofences
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      regionRequest  true  "Region"
// @Success      201   {object}  domain.Geofence
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /api/geofences [post]
func (h *GeofenceHandler) Create(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req regionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	fence, err := h.service.Create(c.Request().Context(), actor, req.region())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, fence)
}

// List handles GET /api/geofences.
//
// @Summary      List my geofences
// @Tags         geofences
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.Geofence
// @Router       /api/geofences [get]
func (h *GeofenceHandler) List(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	fences, err := h.service.List(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	if fences == nil {
		fences = []*domain.Geofence{}
	}
	return c.JSON(http.StatusOK, fences)
}

// Update handles PUT /api/geofences/:id.
//
// @Summary      Replace a geofence
// @Tags         geofences
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string         true  "Geofence ID"
// @Param        body  body      regionRequest  true  "Region"
// @Success      200   {object}  domain.Geofence
// @Failure      404   {object}  map[string]string
// @Router       /api/geofences/{id} [put]
func (h *GeofenceHandler) Update(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req regionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	fence, err := h.service.Update(c.Request().Context(), actor, c.Param("id"), req.region())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fence)
}

// Delete handles DELETE /api/geofences/:id.
//
// @Summary      Delete a geofence
// @Tags         geofences
// @Security     BearerAuth
// @Param        id  path  string  true  "Geofence ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /api/geofences/{id} [delete]
func (h *GeofenceHandler) Delete(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Status handles GET /api/geofences/status.
//
// @Summary      Evaluate my geofences against a location
// @Description  Without lat/lng the latest reported location is used.
// @Tags         geofences
// @Produce      json
// @Security     BearerAuth
// @Param        lat  query     number  false  "Latitude"
// @Param        lng  query     number  false  "Longitude"
// @Success      200  {array}   geofenceStatusResponse
// @Failure      422  {object}  map[string]string
// @Router       /api/geofences/status [get]
func (h *GeofenceHandler) Status(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	coord, err := queryCoordinate(c)
	if err != nil {
		return err
	}
	statuses, err := h.service.Status(c.Request().Context(), actor, coord)
	if err != nil {
		return err
	}
	out := make([]geofenceStatusResponse, len(statuses))
	for i, s := range statuses {
		p := s.Proximity
		out[i] = geofenceStatusResponse{Geofence: s.Geofence, Proximity: *toProximityResponse(&p)}
	}
	return c.JSON(http.StatusOK, out)
}
