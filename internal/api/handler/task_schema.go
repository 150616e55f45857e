package handler

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/geotask/task-service/internal/core/geo"
)

// --- Requests ---

type geofenceRequest struct {
	Lat     float64 `json:"lat"      validate:"latitude"`
	Lng     float64 `json:"lng"      validate:"longitude"`
	RadiusM float64 `json:"radius_m" validate:"gt=0"`
}

type createTaskRequest struct {
	Title       string           `json:"title"        validate:"required,max=200"`
	Description string           `json:"description"  validate:"max=2000"`
	DueAt       *time.Time       `json:"due_at"`
	Geofence    *geofenceRequest `json:"geofence"     validate:"omitempty"`
	AssigneeIDs []string         `json:"assignee_ids"`
}

// updateTaskRequest leaves absent fields unchanged. assignee_ids replaces the
// whole list when present.
type updateTaskRequest struct {
	Title          *string          `json:"title"           validate:"omitempty,max=200"`
	Description    *string          `json:"description"     validate:"omitempty,max=2000"`
	DueAt          *time.Time       `json:"due_at"`
	Geofence       *geofenceRequest `json:"geofence"        validate:"omitempty"`
	RemoveGeofence bool             `json:"remove_geofence"`
	AssigneeIDs    []string         `json:"assignee_ids"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=NEW IN_PROGRESS COMPLETED CANCELLED"`
}

type coordinateRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

type acknowledgeRequest struct {
	Location *coordinateRequest `json:"location" validate:"omitempty"`
}

// --- Responses ---

type geofenceResponse struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM float64 `json:"radius_m"`
}

type assigneeResponse struct {
	UserID         string     `json:"user_id"`
	Email          string     `json:"email"`
	AssignedAt     time.Time  `json:"assigned_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// proximityResponse omits the distance entirely when it is unknown.
type proximityResponse struct {
	DistanceMeters *float64 `json:"distance_m,omitempty"`
	Distance       string   `json:"distance,omitempty"`
	WithinRadius   bool     `json:"within_radius"`
}

type taskResponse struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Description    string             `json:"description,omitempty"`
	Status         string             `json:"status"`
	DueAt          *time.Time         `json:"due_at,omitempty"`
	Overdue        bool               `json:"overdue"`
	Geofence       *geofenceResponse  `json:"geofence,omitempty"`
	CreatedBy      string             `json:"created_by"`
	CreatedByEmail string             `json:"created_by_email"`
	Assignees      []assigneeResponse `json:"assignees"`
	Proximity      *proximityResponse `json:"proximity,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type listTasksResponse struct {
	Items      []taskResponse `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
	HasNext    bool           `json:"has_next"`
	HasPrev    bool           `json:"has_prev"`
}

type acknowledgeResponse struct {
	Task           taskResponse       `json:"task"`
	AcknowledgedAt time.Time          `json:"acknowledged_at"`
	Proximity      *proximityResponse `json:"proximity,omitempty"`
}

type mapViewResponse struct {
	Region   geo.MapBounds              `json:"region"`
	Fallback bool                       `json:"fallback"`
	Device   *geo.Coordinate            `json:"device,omitempty"`
	Tasks    []taskResponse             `json:"tasks"`
	GeoJSON  *geojson.FeatureCollection `json:"geojson"`
}
