package issues

import "math"

const earthRadiusMeters = 6371000.0

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// boundingBox is a coarse lat/lon window used to prefilter rows in SQL before
// the exact distance check.
type boundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	// WrapsLon is set when the window crosses the antimeridian or a pole, in
	// which case longitude is not filtered.
	WrapsLon bool
}

func boxAround(lat, lon, radiusMeters float64) boundingBox {
	latDelta := radiusMeters / earthRadiusMeters * 180 / math.Pi
	box := boundingBox{
		MinLat: math.Max(lat-latDelta, -90),
		MaxLat: math.Min(lat+latDelta, 90),
	}

	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 1e-6 || box.MinLat == -90 || box.MaxLat == 90 {
		box.WrapsLon = true
		return box
	}
	lonDelta := latDelta / cosLat
	box.MinLon = lon - lonDelta
	box.MaxLon = lon + lonDelta
	if box.MinLon < -180 || box.MaxLon > 180 {
		box.WrapsLon = true
	}
	return box
}
