package explore

import (
	"errors"

	"github.com/couchcryptid/civic-data-tour/internal/domain"
)

// Rent trend modes.
const (
	RentModeLevel  = "level"
	RentModeChange = "change"
)

// Chart captions.
const (
	RentLabelLevel    = "Viewing rent level ($)"
	RentLabelChange   = "Viewing year-over-year change (%)"
	RentUnavailable   = "Rent trend data unavailable."
	RentNotEnoughData = "Not enough data for this view. Try resetting the filters."
)

const densityLimit = 40

// ErrInvalidRentMode rejects an unknown rent trend mode.
var ErrInvalidRentMode = errors.New(`rent mode must be "level" or "change"`)

var tenureLabels = map[string]string{
	domain.TenureOwner:  "Owner",
	domain.TenureRenter: "Renter",
	domain.TenureTotal:  "All households",
}

// HousingGroup is one bar of the housing burden chart, in percent of households.
type HousingGroup struct {
	Group       string  `json:"group"`
	Label       string  `json:"label"`
	ModeratePct float64 `json:"moderate_pct"`
	SeverePct   float64 `json:"severe_pct"`
	TotalPct    float64 `json:"total_pct"`
}

// HousingView is the housing cost burden chart data.
type HousingView struct {
	Groups          []HousingGroup       `json:"groups"`
	TotalHouseholds *domain.TenureCounts `json:"total_households,omitempty"`
}

// RentValue is one plotted point of the rent trend.
type RentValue struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// RentView is the rent trend chart data for a mode and start year. Message is
// set instead of points when there is nothing to plot.
type RentView struct {
	Mode      string      `json:"mode"`
	Label     string      `json:"label"`
	StartYear int         `json:"start_year,omitempty"`
	MinYear   int         `json:"min_year,omitempty"`
	MaxYear   int         `json:"max_year,omitempty"`
	Points    []RentValue `json:"points"`
	Message   string      `json:"message,omitempty"`
}

// NeighborhoodDensity places a neighborhood's business count on the map.
type NeighborhoodDensity struct {
	Neighborhood  string             `json:"neighborhood"`
	BusinessCount int                `json:"business_count"`
	ShareOfCity   float64            `json:"share_of_city"`
	Centroid      domain.Coordinates `json:"centroid"`
}

// HousingBurden returns moderate and severe burden shares for owners, renters
// and all households. Missing shares read as zero.
func (s *Service) HousingBurden() (HousingView, error) {
	snap, err := s.data.Get()
	if err != nil {
		s.observe("housing", err)
		return HousingView{}, err
	}

	h := snap.Housing
	view := HousingView{
		Groups:          make([]HousingGroup, 0, len(tenureLabels)),
		TotalHouseholds: h.TotalHouseholds,
	}
	for _, group := range []string{domain.TenureOwner, domain.TenureRenter, domain.TenureTotal} {
		g := HousingGroup{Group: group, Label: tenureLabels[group]}
		if h.ModerateShare != nil {
			g.ModeratePct = h.ModerateShare.Of(group) * 100
		}
		if h.SevereShare != nil {
			g.SeverePct = h.SevereShare.Of(group) * 100
		}
		g.TotalPct = g.ModeratePct + g.SeverePct
		view.Groups = append(view.Groups, g)
	}
	s.observe("housing", nil)
	return view, nil
}

// RentTrend returns the citywide rent series from startYear on, as dollar
// levels or as year-over-year percent change. An empty mode means level; a
// zero startYear means the first year. startYear is clamped to the data.
func (s *Service) RentTrend(mode string, startYear int) (RentView, error) {
	if mode == "" {
		mode = RentModeLevel
	}
	if mode != RentModeLevel && mode != RentModeChange {
		s.observe("rent", ErrInvalidRentMode)
		return RentView{}, ErrInvalidRentMode
	}
	snap, err := s.data.Get()
	if err != nil {
		s.observe("rent", err)
		return RentView{}, err
	}

	view := RentView{Mode: mode, Label: RentLabelLevel, Points: []RentValue{}}
	if mode == RentModeChange {
		view.Label = RentLabelChange
	}
	series := snap.Rent
	if len(series) == 0 {
		view.Message = RentUnavailable
		s.observe("rent", nil)
		return view, nil
	}

	view.MinYear = series[0].Date.Year()
	view.MaxYear = series[len(series)-1].Date.Year()
	if startYear == 0 {
		startYear = view.MinYear
	}
	view.StartYear = min(max(startYear, view.MinYear), view.MaxYear)

	for _, p := range series {
		if p.Date.Year() < view.StartYear {
			continue
		}
		v := RentValue{Date: p.Date.Format("2006-01-02"), Value: p.Value}
		if mode == RentModeChange {
			if p.YoY == nil {
				continue
			}
			v.Value = *p.YoY
		}
		view.Points = append(view.Points, v)
	}
	if len(view.Points) == 0 {
		view.Message = RentNotEnoughData
	}
	s.observe("rent", nil)
	return view, nil
}

// BusinessDensity returns the neighborhoods with the most registered
// businesses that have a map centroid, largest first.
func (s *Service) BusinessDensity() ([]NeighborhoodDensity, error) {
	snap, err := s.data.Get()
	if err != nil {
		s.observe("density", err)
		return nil, err
	}

	out := make([]NeighborhoodDensity, 0, min(densityLimit, len(snap.BusinessNeighborhoods)))
	for _, n := range snap.BusinessNeighborhoods {
		c, ok := snap.Centroids[n.Neighborhood]
		if !ok {
			continue
		}
		d := NeighborhoodDensity{
			Neighborhood:  n.Neighborhood,
			BusinessCount: n.BusinessCount,
			Centroid:      c,
		}
		if snap.TotalBusinesses > 0 {
			d.ShareOfCity = float64(n.BusinessCount) / float64(snap.TotalBusinesses)
		}
		out = append(out, d)
		if len(out) == densityLimit {
			break
		}
	}
	s.observe("density", nil)
	return out, nil
}
