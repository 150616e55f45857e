package domain

import (
	"errors"
	"time"

	"github.com/geotask/task-service/internal/core/geo"
)

var (
	ErrGeofenceNotFound = errors.New("geofence not found")
	ErrGeofenceExists   = errors.New("geofence identifier already in use")
	ErrInvalidGeofence  = errors.New("invalid geofence")
)

// Geofence is a registry record: a named region owned by one user.
type Geofence struct {
	ID      string `json:"id" bson:"_id"`
	OwnerID string `json:"owner_id" bson:"owner_id"`
	TaskID  string `json:"task_id,omitempty" bson:"task_id,omitempty"`

	geo.GeofenceRegion `bson:",inline"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// ValidateRegion checks the parts of a region the engine relies on.
func ValidateRegion(r geo.GeofenceRegion) error {
	if r.Identifier == "" || !r.Center.Valid() || !(r.RadiusMeters > 0) {
		return ErrInvalidGeofence
	}
	return nil
}

// Transition is a change of containment for one user and one region.
type Transition string

const (
	TransitionEnter Transition = "enter"
	TransitionExit  Transition = "exit"
)

// GeofenceTransition records a user crossing a region boundary.
type GeofenceTransition struct {
	UserID     string             `json:"user_id"`
	Region     geo.GeofenceRegion `json:"region"`
	TaskID     string             `json:"task_id,omitempty"`
	Direction  Transition         `json:"direction"`
	Distance   float64            `json:"distance_m"`
	OccurredAt time.Time          `json:"occurred_at"`
}
