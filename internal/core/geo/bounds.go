package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

const (
	// MinSpan keeps a region from collapsing when every point coincides.
	MinSpan = 0.01
	// DefaultPaddingFactor is applied when the caller passes a non-positive factor.
	DefaultPaddingFactor = 1.2
)

// ErrEmptyInput is returned by ComputeBounds when there is nothing to frame.
var ErrEmptyInput = errors.New("geo: no coordinates to compute bounds")

// MapBounds is a map viewport expressed as a center and degree spans.
type MapBounds struct {
	CenterLatitude  float64 `json:"center_latitude"`
	CenterLongitude float64 `json:"center_longitude"`
	LatitudeSpan    float64 `json:"latitude_span"`
	LongitudeSpan   float64 `json:"longitude_span"`
}

// Bound converts the viewport into an orb.Bound ([lng, lat] order).
func (b MapBounds) Bound() orb.Bound {
	halfLat := b.LatitudeSpan / 2
	halfLng := b.LongitudeSpan / 2
	return orb.Bound{
		Min: orb.Point{b.CenterLongitude - halfLng, b.CenterLatitude - halfLat},
		Max: orb.Point{b.CenterLongitude + halfLng, b.CenterLatitude + halfLat},
	}
}

// ComputeBounds frames every valid point with the given padding factor.
// Invalid coordinates are ignored; if none remain, ErrEmptyInput is returned
// and the caller decides on a fallback region.
func ComputeBounds(points []Coordinate, paddingFactor float64) (MapBounds, error) {
	if paddingFactor <= 0 || math.IsNaN(paddingFactor) || math.IsInf(paddingFactor, 0) {
		paddingFactor = DefaultPaddingFactor
	}

	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		mp = append(mp, orb.Point{p.Lng, p.Lat})
	}
	if len(mp) == 0 {
		return MapBounds{}, ErrEmptyInput
	}

	bound := mp.Bound()
	minLng, minLat := bound.Min.X(), bound.Min.Y()
	maxLng, maxLat := bound.Max.X(), bound.Max.Y()

	return MapBounds{
		CenterLatitude:  (minLat + maxLat) / 2,
		CenterLongitude: (minLng + maxLng) / 2,
		LatitudeSpan:    math.Max((maxLat-minLat)*paddingFactor, MinSpan),
		LongitudeSpan:   math.Max((maxLng-minLng)*paddingFactor, MinSpan),
	}, nil
}
