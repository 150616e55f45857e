package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/ports"
)

type NotificationHandler struct {
	service ports.NotificationService
}

func NewNotificationHandler(service ports.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type notificationPageResponse struct {
	Items       []*domain.Notification `json:"items"`
	Total       int64                  `json:"total"`
	Page        int                    `json:"page"`
	Limit       int                    `json:"limit"`
	TotalPages  int                    `json:"total_pages"`
	UnreadCount int64                  `json:"unread_count"`
}

type unreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

type markAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// List handles GET /api/notifications.
//
// @Summary      List my notifications
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page (1-based)"
// @Param        limit  query     int  false  "Page size (max 100)"
// @Success      200    {object}  notificationPageResponse
// @Router       /api/notifications [get]
func (h *NotificationHandler) List(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	page, err := h.service.List(c.Request().Context(), actor, queryInt(c, "page", 1), queryInt(c, "limit", 0))
	if err != nil {
		return err
	}
	items := page.Items
	if items == nil {
		items = []*domain.Notification{}
	}
	return c.JSON(http.StatusOK, notificationPageResponse{
		Items:       items,
		Total:       page.Total,
		Page:        page.Page,
		Limit:       page.Limit,
		TotalPages:  page.TotalPages,
		UnreadCount: page.UnreadCount,
	})
}

// UnreadCount handles GET /api/notifications/unread-count.
//
// @Summary      Count my unread notifications
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  unreadCountResponse
// @Router       /api/notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	n, err := h.service.UnreadCount(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, unreadCountResponse{UnreadCount: n})
}

// MarkRead handles POST /api/notifications/:id/read.
//
// @Summary      Mark a notification read
// @Tags         notifications
// @Security     BearerAuth
// @Param        id  path  string  true  "Notification ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /api/notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	if err := h.service.MarkRead(c.Request().Context(), actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/mark-all-read.
//
// @Summary      Mark all my notifications read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  markAllReadResponse
// @Router       /api/notifications/mark-all-read [post]
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	n, err := h.service.MarkAllRead(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, markAllReadResponse{Updated: n})
}

// SendTest handles POST /api/notifications/test.
//
// @Summary      Send myself a test notification (admin)
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      201  {object}  domain.Notification
// @Failure      403  {object}  map[string]string
// @Router       /api/notifications/test [post]
func (h *NotificationHandler) SendTest(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	n, err := h.service.SendTest(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, n)
}
