package domain

import (
	"math"
	"sort"
	"time"
)

const rentDateLayout = "2006-01-02"

// RentPoint is one month of the citywide rent series.
type RentPoint struct {
	Date  time.Time
	Value float64
	// YoY is the percent change from the same month a year earlier, nil when
	// that month is missing or zero.
	YoY *float64
}

// BuildRentSeries parses, orders and annotates rent observations. Entries with
// an unparseable date or no value are dropped.
func BuildRentSeries(obs []RentObservation) []RentPoint {
	points := make([]RentPoint, 0, len(obs))
	for _, o := range obs {
		if o.Zori == nil || math.IsNaN(*o.Zori) || math.IsInf(*o.Zori, 0) {
			continue
		}
		d, err := time.Parse(rentDateLayout, o.Date)
		if err != nil {
			continue
		}
		points = append(points, RentPoint{Date: d, Value: *o.Zori})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	for i := 12; i < len(points); i++ {
		prev := points[i-12]
		if monthsBetween(prev.Date, points[i].Date) != 12 || prev.Value == 0 {
			continue
		}
		yoy := (points[i].Value - prev.Value) / prev.Value * 100
		points[i].YoY = &yoy
	}
	return points
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
