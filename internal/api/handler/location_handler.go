package handler

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
)

const (
	maxBatchSize = 500
	// maxClockSkew bounds how far in the future a device clock may be. A
	// sample dated later would shadow every genuine sample after it.
	maxClockSkew = 5 * time.Minute
	sourceHTTP   = "http"
)

// LocationQueue is the interface the handler uses to enqueue samples.
type LocationQueue interface {
	Enqueue(sample domain.LocationSample) error
	EnqueueBatch(samples []domain.LocationSample) (int, error)
}

// LocationHandler handles location sample ingestion.
type LocationHandler struct {
	queue LocationQueue
	now   func() time.Time
}

// NewLocationHandler creates a LocationHandler backed by the given queue.
func NewLocationHandler(queue LocationQueue) *LocationHandler {
	return &LocationHandler{queue: queue, now: time.Now}
}

// Receive handles POST /api/locations and enqueues a single sample, returns 202.
//
// @Summary      Report the caller's location
// @Tags         locations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      locationRequest  true  "Location sample"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/locations [post]
func (h *LocationHandler) Receive(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req locationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	sample, err := h.toSample(c, actor.UserID, req)
	if err != nil {
		return err
	}

	if err := h.queue.Enqueue(sample); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "location accepted"})
}

// ReceiveBatch handles POST /api/locations/batch. Samples are enqueued oldest
// first, so an out-of-order upload is not dropped as stale.
//
// @Summary      Report a batch of locations
// @Tags         locations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      []locationRequest  true  "Array of location samples"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      503   {object}  partialBatchResponse
// @Router       /api/locations/batch [post]
func (h *LocationHandler) ReceiveBatch(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var reqs []locationRequest
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if len(reqs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch cannot be empty")
	}
	if len(reqs) > maxBatchSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch cannot exceed %d samples", maxBatchSize))
	}

	samples := make([]domain.LocationSample, 0, len(reqs))
	for i, req := range reqs {
		sample, err := h.toSample(c, actor.UserID, req)
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return echo.NewHTTPError(he.Code, fmt.Sprintf("location[%d]: %v", i, he.Message))
			}
			return err
		}
		samples = append(samples, sample)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].RecordedAt.Before(samples[j].RecordedAt)
	})

	accepted, err := h.queue.EnqueueBatch(samples)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, partialBatchResponse{
			Error:    err.Error(),
			Accepted: accepted,
		})
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{
		Message: "locations accepted",
		Count:   accepted,
	})
}

// toSample validates the request and maps it to a sample for userID.
func (h *LocationHandler) toSample(c echo.Context, userID string, r locationRequest) (domain.LocationSample, error) {
	if err := c.Validate(&r); err != nil {
		return domain.LocationSample{}, echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	now := h.now().UTC()
	at := now
	if r.RecordedAt != nil {
		at = r.RecordedAt.UTC()
		if at.After(now.Add(maxClockSkew)) {
			return domain.LocationSample{}, echo.NewHTTPError(http.StatusUnprocessableEntity, "recorded_at is in the future")
		}
	}
	return domain.LocationSample{
		UserID:     userID,
		Coordinate: geo.Coordinate{Lat: r.Lat, Lng: r.Lng},
		AccuracyM:  r.AccuracyM,
		RecordedAt: at,
		Source:     sourceHTTP,
	}, nil
}
