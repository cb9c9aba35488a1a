package places

import (
	"github.com/golang/geo/s2"

	"github.com/trashtalkers/trashtalkers/internal/model"
)

// earthRadiusKm is the mean Earth radius.
const earthRadiusKm = 6371.0088

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(a, b model.Coordinates) float64 {
	pa := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	pb := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return pa.Distance(pb).Radians() * earthRadiusKm
}

// RecyclingLocations maps search results onto stored locations. When origin
// is set each location carries its distance from it.
func RecyclingLocations(places []Place, origin *model.Coordinates) []model.RecyclingLocation {
	locations := make([]model.RecyclingLocation, 0, len(places))
	for _, p := range places {
		loc := model.RecyclingLocation{
			Name:      p.Name,
			Address:   p.Address,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		}
		if origin != nil {
			d := DistanceKm(*origin, model.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude})
			loc.Distance = &d
		}
		locations = append(locations, loc)
	}
	return locations
}
