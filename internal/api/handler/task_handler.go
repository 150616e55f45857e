package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geotask/task-service/internal/api/metrics"
	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/ports"
)

// TaskHandler handles HTTP requests for task operations.
type TaskHandler struct {
	service ports.TaskService
	now     func() time.Time
}

func NewTaskHandler(service ports.TaskService) *TaskHandler {
	return &TaskHandler{service: service, now: time.Now}
}

// Create handles POST /api/tasks.
//
// @Summary      Create a task
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createTaskRequest  true  "Task details"
// @Success      201   {object}  taskResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /api/tasks [post]
func (h *TaskHandler) Create(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	task, err := h.service.CreateTask(c.Request().Context(), actor, toCreateTaskInput(req))
	if err != nil {
		return err
	}
	metrics.TasksCreatedTotal.WithLabelValues(strconv.FormatBool(task.Geofence != nil)).Inc()
	return c.JSON(http.StatusCreated, toTaskResponse(task, h.now()))
}

// Get handles GET /api/tasks/:id.
//
// @Summary      Get a task
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string   true   "Task ID"
// @Param        lat  query     number   false  "Latitude for proximity"
// @Param        lng  query     number   false  "Longitude for proximity"
// @Success      200  {object}  taskResponse
// @Failure      404  {object}  map[string]string
// @Router       /api/tasks/{id} [get]
func (h *TaskHandler) Get(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	coord, err := queryCoordinate(c)
	if err != nil {
		return err
	}
	view, err := h.service.GetTask(c.Request().Context(), actor, c.Param("id"), coord)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskViewResponse(*view, h.now()))
}

// Mine handles GET /api/tasks/me.
//
// @Summary      List my tasks with proximity
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        lat  query     number  false  "Latitude"
// @Param        lng  query     number  false  "Longitude"
// @Success      200  {array}   taskResponse
// @Failure      400  {object}  map[string]string
// @Router       /api/tasks/me [get]
func (h *TaskHandler) Mine(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	coord, err := queryCoordinate(c)
	if err != nil {
		return err
	}
	views, err := h.service.ListMyTasks(c.Request().Context(), actor, coord)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskViewsResponse(views, h.now()))
}

// List handles GET /api/tasks.
//
// @Summary      List tasks (admin)
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        page         query     int     false  "Page (1-based)"
// @Param        limit        query     int     false  "Page size (max 100)"
// @Param        status       query     string  false  "Status filter"
// @Param        search       query     string  false  "Search in title and description"
// @Param        assignee_id  query     string  false  "Assignee filter"
// @Success      200          {object}  listTasksResponse
// @Failure      403          {object}  map[string]string
// @Router       /api/tasks [get]
func (h *TaskHandler) List(c echo.Context) error {
	res, err := h.service.ListTasks(c.Request().Context(), ports.ListTasksInput{
		Status:     c.QueryParam("status"),
		Search:     c.QueryParam("search"),
		AssigneeID: c.QueryParam("assignee_id"),
		Page:       queryInt(c, "page", 1),
		Limit:      queryInt(c, "limit", 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toListTasksResponse(res, h.now()))
}

// Update handles PUT /api/tasks/:id.
//
// @Summary      Update a task (admin)
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "Task ID"
// @Param        body  body      updateTaskRequest  true  "Fields to change"
// @Success      200   {object}  taskResponse
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/tasks/{id} [put]
func (h *TaskHandler) Update(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req updateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	task, err := h.service.UpdateTask(c.Request().Context(), actor, c.Param("id"), toUpdateTaskInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskResponse(task, h.now()))
}

// Delete handles DELETE /api/tasks/:id.
//
// @Summary      Delete a task (admin)
// @Tags         tasks
// @Security     BearerAuth
// @Param        id  path  string  true  "Task ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /api/tasks/{id} [delete]
func (h *TaskHandler) Delete(c echo.Context) error {
	if err := h.service.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateStatus handles PUT /api/tasks/:id/status.
//
// @Summary      Change task status (admin)
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string               true  "Task ID"
// @Param        body  body      updateStatusRequest  true  "New status"
// @Success      200   {object}  taskResponse
// @Failure      422   {object}  map[string]string
// @Router       /api/tasks/{id}/status [put]
func (h *TaskHandler) UpdateStatus(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	task, err := h.service.UpdateStatus(c.Request().Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskResponse(task, h.now()))
}

// Acknowledge handles POST /api/tasks/:id/ack.
//
// @Summary      Acknowledge an assigned task
// @Description  Geofenced tasks must be acknowledged from inside the geofence.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string              true   "Task ID"
// @Param        body  body      acknowledgeRequest  false  "Current location"
// @Success      200   {object}  acknowledgeResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/tasks/{id}/ack [post]
func (h *TaskHandler) Acknowledge(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req acknowledgeRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
		}
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
	}

	res, err := h.service.AcknowledgeTask(c.Request().Context(), ports.AcknowledgeInput{
		TaskID:   c.Param("id"),
		Actor:    actor,
		Location: req.Location.coordinate(),
	})
	if err != nil {
		metrics.TaskAcknowledgementsTotal.WithLabelValues(ackResult(err)).Inc()
		return err
	}
	metrics.TaskAcknowledgementsTotal.WithLabelValues("ok").Inc()

	return c.JSON(http.StatusOK, acknowledgeResponse{
		Task:           toTaskResponse(res.Task, h.now()),
		AcknowledgedAt: res.AcknowledgedAt,
		Proximity:      toProximityResponse(res.Proximity),
	})
}

// Stats handles GET /api/tasks/stats.
//
// @Summary      Task counters
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ports.TaskStats
// @Router       /api/tasks/stats [get]
func (h *TaskHandler) Stats(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	stats, err := h.service.Stats(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// Map handles GET /api/tasks/map.
//
// @Summary      Map region and GeoJSON for my geofenced tasks
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        lat      query     number  false  "Device latitude"
// @Param        lng      query     number  false  "Device longitude"
// @Param        padding  query     number  false  "Padding factor (default 1.2)"
// @Success      200      {object}  mapViewResponse
// @Router       /api/tasks/map [get]
func (h *TaskHandler) Map(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	coord, err := queryCoordinate(c)
	if err != nil {
		return err
	}
	var padding float64
	if raw := c.QueryParam("padding"); raw != "" {
		padding, err = strconv.ParseFloat(raw, 64)
		if err != nil || padding <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "padding must be a positive number")
		}
	}
	view, err := h.service.MapView(c.Request().Context(), ports.MapViewInput{
		Actor:    actor,
		Location: coord,
		Padding:  padding,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toMapViewResponse(view, h.now()))
}

// ackResult labels failed acknowledgements for metrics.
func ackResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrOutsideGeofence):
		return "outside_geofence"
	case errors.Is(err, domain.ErrLocationRequired), errors.Is(err, domain.ErrLocationUnknown):
		return "no_location"
	case errors.Is(err, domain.ErrAlreadyAcknowledged):
		return "duplicate"
	case errors.Is(err, domain.ErrNotAssigned), errors.Is(err, domain.ErrTaskNotFound):
		return "rejected"
	}
	return "error"
}
