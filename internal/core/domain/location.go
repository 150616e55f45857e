package domain

import (
	"errors"
	"time"

	"github.com/geotask/task-service/internal/core/geo"
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrStaleSample       = errors.New("location sample older than latest known")
	ErrNoLocation        = errors.New("no recent location")
)

// LocationSample is a device position reported for a user.
type LocationSample struct {
	UserID     string         `json:"user_id"`
	Coordinate geo.Coordinate `json:"coordinate"`
	AccuracyM  float64        `json:"accuracy_m,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
	Source     string         `json:"source"`
}

// Fresh reports whether the sample is no older than maxAge at now.
// A non-positive maxAge accepts any age.
func (s LocationSample) Fresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(s.RecordedAt) <= maxAge
}
