package handler

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
	"github.com/geotask/task-service/internal/core/ports"
)

// --- Request → Service input ---

func toGeofenceInput(g *geofenceRequest) *ports.GeofenceInput {
	if g == nil {
		return nil
	}
	return &ports.GeofenceInput{Lat: g.Lat, Lng: g.Lng, RadiusM: g.RadiusM}
}

func toCreateTaskInput(req createTaskRequest) ports.CreateTaskInput {
	return ports.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		DueAt:       req.DueAt,
		Geofence:    toGeofenceInput(req.Geofence),
		AssigneeIDs: req.AssigneeIDs,
	}
}

func toUpdateTaskInput(req updateTaskRequest) ports.UpdateTaskInput {
	return ports.UpdateTaskInput{
		Title:          req.Title,
		Description:    req.Description,
		DueAt:          req.DueAt,
		Geofence:       toGeofenceInput(req.Geofence),
		RemoveGeofence: req.RemoveGeofence,
		AssigneeIDs:    req.AssigneeIDs,
	}
}

func (r *coordinateRequest) coordinate() *geo.Coordinate {
	if r == nil {
		return nil
	}
	return &geo.Coordinate{Lat: r.Lat, Lng: r.Lng}
}

// --- Service result → HTTP response ---

func toProximityResponse(p *geo.ProximityResult) *proximityResponse {
	if p == nil {
		return nil
	}
	resp := &proximityResponse{WithinRadius: p.WithinRadius}
	if !p.Unknown() {
		d := p.DistanceMeters
		resp.DistanceMeters = &d
		resp.Distance = geo.FormatDistance(d)
	}
	return resp
}

func toTaskResponse(t *domain.Task, now time.Time) taskResponse {
	resp := taskResponse{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         string(t.Status),
		DueAt:          t.DueAt,
		Overdue:        t.Overdue(now),
		CreatedBy:      t.CreatedBy,
		CreatedByEmail: t.CreatedByEmail,
		Assignees:      make([]assigneeResponse, len(t.Assignees)),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if t.Geofence != nil {
		resp.Geofence = &geofenceResponse{
			Lat:     t.Geofence.Center.Lat,
			Lng:     t.Geofence.Center.Lng,
			RadiusM: t.Geofence.RadiusMeters,
		}
	}
	for i, a := range t.Assignees {
		resp.Assignees[i] = assigneeResponse{
			UserID:         a.UserID,
			Email:          a.Email,
			AssignedAt:     a.AssignedAt,
			AcknowledgedAt: a.AcknowledgedAt,
		}
	}
	return resp
}

func toTaskViewResponse(v ports.TaskView, now time.Time) taskResponse {
	resp := toTaskResponse(v.Task, now)
	resp.Proximity = toProximityResponse(v.Proximity)
	return resp
}

func toTaskViewsResponse(views []ports.TaskView, now time.Time) []taskResponse {
	out := make([]taskResponse, len(views))
	for i, v := range views {
		out[i] = toTaskViewResponse(v, now)
	}
	return out
}

func toListTasksResponse(r *ports.ListTasksResult, now time.Time) listTasksResponse {
	items := make([]taskResponse, len(r.Items))
	for i, t := range r.Items {
		items[i] = toTaskResponse(t, now)
	}
	return listTasksResponse{
		Items:      items,
		Total:      r.Total,
		Page:       r.Page,
		Limit:      r.Limit,
		TotalPages: r.TotalPages,
		HasNext:    r.HasNext,
		HasPrev:    r.HasPrev,
	}
}

func toMapViewResponse(m *ports.MapView, now time.Time) mapViewResponse {
	return mapViewResponse{
		Region:   m.Bounds,
		Fallback: m.Fallback,
		Device:   m.Device,
		Tasks:    toTaskViewsResponse(m.Tasks, now),
		GeoJSON:  toFeatureCollection(m),
	}
}

// toFeatureCollection renders one point per task geofence center plus the
// device, framed by the view's bounding box.
func toFeatureCollection(m *ports.MapView) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.BBox = geojson.NewBBox(m.Bounds.Bound())

	for _, v := range m.Tasks {
		if v.Task.Geofence == nil {
			continue
		}
		c := v.Task.Geofence.Center
		f := geojson.NewFeature(orb.Point{c.Lng, c.Lat})
		f.ID = v.Task.ID
		f.Properties["kind"] = "task"
		f.Properties["title"] = v.Task.Title
		f.Properties["status"] = string(v.Task.Status)
		f.Properties["radius_m"] = v.Task.Geofence.RadiusMeters
		if v.Proximity != nil && !v.Proximity.Unknown() {
			f.Properties["distance_m"] = v.Proximity.DistanceMeters
			f.Properties["distance"] = geo.FormatDistance(v.Proximity.DistanceMeters)
			f.Properties["within_radius"] = v.Proximity.WithinRadius
		}
		fc.Append(f)
	}

	if m.Device != nil {
		f := geojson.NewFeature(orb.Point{m.Device.Lng, m.Device.Lat})
		f.Properties["kind"] = "device"
		fc.Append(f)
	}
	return fc
}
