// Package geo is the single implementation of geofence proximity math used by
// every caller in the service: great-circle distance, containment, map bounds
// and distance formatting.
//
// All functions are pure. They hold no state and may be called from any
// goroutine without synchronisation.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Coordinate is a WGS84 point in signed decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Valid reports whether both components are finite and within range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// GeofenceRegion is a named circular region.
type GeofenceRegion struct {
	Identifier    string     `json:"identifier" bson:"identifier"`
	Center        Coordinate `json:"center" bson:"center"`
	RadiusMeters  float64    `json:"radius_m" bson:"radius_m"`
	NotifyOnEnter bool       `json:"notify_on_enter" bson:"notify_on_enter"`
	NotifyOnExit  bool       `json:"notify_on_exit" bson:"notify_on_exit"`
}

// ProximityResult is the outcome of evaluating one coordinate sample against
// one region. A NaN distance means the location is unknown.
type ProximityResult struct {
	DistanceMeters float64
	WithinRadius   bool
}

// Unknown reports whether the distance could not be computed.
func (r ProximityResult) Unknown() bool {
	return math.IsNaN(r.DistanceMeters)
}

// Distance returns the haversine great-circle distance between a and b in
// meters. Invalid coordinates yield NaN.
func Distance(a, b Coordinate) float64 {
	if !a.Valid() || !b.Valid() {
		return math.NaN()
	}

	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lng - a.Lng)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda

	// Rounding can push h a hair outside [0,1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// IsWithin reports whether point lies inside region. The boundary counts as
// inside; an unknown distance never does.
func IsWithin(point Coordinate, region GeofenceRegion) bool {
	return Distance(point, region.Center) <= region.RadiusMeters
}

// Evaluate computes distance and containment in one pass.
func Evaluate(point Coordinate, region GeofenceRegion) ProximityResult {
	d := Distance(point, region.Center)
	return ProximityResult{
		DistanceMeters: d,
		WithinRadius:   d <= region.RadiusMeters,
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
