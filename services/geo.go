package services

import (
	"math"

	"github.com/citizenvoice/citizenvoice-api/databases"
)

const earthRadiusKm = 6371.0

// haversineKm is the great circle distance between two points
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// boundingBox is a rectangle that contains the circle of radiusKm around a point
func boundingBox(lat, lng, radiusKm float64) databases.BoundingBox {
	dLat := radiusKm / earthRadiusKm * 180 / math.Pi
	cos := math.Cos(lat * math.Pi / 180)
	dLng := 180.0
	if cos > 1e-6 {
		dLng = math.Min(180, dLat/cos)
	}
	return databases.BoundingBox{
		MinLat: math.Max(-90, lat-dLat),
		MaxLat: math.Min(90, lat+dLat),
		MinLng: math.Max(-180, lng-dLng),
		MaxLng: math.Min(180, lng+dLng),
	}
}
