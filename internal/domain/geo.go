package domain

import (
	"fmt"
	"math"
	"slices"
)

const earthRadiusKm = 6371.0

// Ranked pairs an item with its distance from a reference point.
type Ranked[T any] struct {
	Item       T       `json:"item"`
	DistanceKm float64 `json:"distance_km"`
	Distance   string  `json:"distance"`
}

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(a, b Coordinates) float64 {
	toRad := func(v float64) float64 { return v * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Nearest returns up to limit items closest to from, nearest first.
// Items without valid coordinates are skipped. Equal distances keep input order.
func Nearest[T any](items []T, coords func(T) Coordinates, from Coordinates, limit int) []Ranked[T] {
	if len(items) == 0 || limit <= 0 || !from.Valid() {
		return nil
	}
	ranked := make([]Ranked[T], 0, len(items))
	for _, item := range items {
		c := coords(item)
		if !c.Valid() {
			continue
		}
		km := HaversineKm(from, c)
		ranked = append(ranked, Ranked[T]{Item: item, DistanceKm: km, Distance: FormatDistance(km)})
	}
	slices.SortStableFunc(ranked, func(a, b Ranked[T]) int {
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		default:
			return 0
		}
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// FormatDistance renders a distance for display: metres under 0.1 miles, miles otherwise.
func FormatDistance(km float64) string {
	if math.IsNaN(km) || math.IsInf(km, 0) {
		return "N/A"
	}
	miles := km * 0.621371
	if miles < 0.1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f mi", miles)
}

// MeanCentroid averages the valid points. ok is false when none are valid.
func MeanCentroid(points []Coordinates) (Coordinates, bool) {
	var latSum, lonSum float64
	n := 0
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		latSum += p.Lat
		lonSum += p.Lon
		n++
	}
	if n == 0 {
		return Coordinates{}, false
	}
	return Coordinates{Lat: latSum / float64(n), Lon: lonSum / float64(n)}, true
}
