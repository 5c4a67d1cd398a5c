package domain

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both components are set.
func (c Coordinates) Valid() bool {
	return c.Lat != 0 && c.Lon != 0
}

// SectorCount is a business sector and its listing count.
type SectorCount struct {
	Sector string `json:"sector"`
	Count  int    `json:"count"`
}

// NeighborhoodCount is a neighborhood and its listing count within a ZIP.
type NeighborhoodCount struct {
	Neighborhood string `json:"neighborhood"`
	Count        int    `json:"count"`
}

// ZipEntry summarises registered businesses for one ZIP code.
type ZipEntry struct {
	Zip              string              `json:"zip"`
	BusinessCount    int                 `json:"business_count"`
	ShareOfCity      float64             `json:"share_of_city"`
	TopSectors       []SectorCount       `json:"top_sectors"`
	TopNeighborhoods []NeighborhoodCount `json:"top_neighborhoods"`
	Centroid         *Coordinates        `json:"centroid,omitempty"`
}

// Neighborhoods returns the names of the ZIP's top neighborhoods in rank order.
func (z ZipEntry) Neighborhoods() []string {
	names := make([]string, 0, len(z.TopNeighborhoods))
	for _, n := range z.TopNeighborhoods {
		if n.Neighborhood != "" {
			names = append(names, n.Neighborhood)
		}
	}
	return names
}

// NeighborhoodCentroid is the mean business location of a neighborhood.
type NeighborhoodCentroid struct {
	Neighborhood string      `json:"neighborhood"`
	Centroid     Coordinates `json:"centroid"`
}

// Park is a recreation and park property.
type Park struct {
	Name        string      `json:"name"`
	Acres       float64     `json:"acres"`
	Category    string      `json:"category"`
	Type        string      `json:"type"`
	Districts   []string    `json:"districts"`
	Coordinates Coordinates `json:"coordinates"`
}

// Facility is a city-owned civic facility.
type Facility struct {
	Name        string      `json:"name"`
	District    string      `json:"district"`
	Address     string      `json:"address"`
	Coordinates Coordinates `json:"coordinates"`
}

// School is a public or private school site.
type School struct {
	Name        string      `json:"name"`
	Zip         string      `json:"zip"`
	Ownership   string      `json:"ownership"`
	Category    string      `json:"category"`
	GeneralType string      `json:"general_type"`
	Grades      string      `json:"grades"`
	Address     string      `json:"address"`
	Coordinates Coordinates `json:"coordinates"`
}

// SchoolCounts tallies schools within one ZIP code.
type SchoolCounts struct {
	Zip     string `json:"zip"`
	Total   int    `json:"total"`
	Public  int    `json:"public"`
	Private int    `json:"private"`
}

// AddressPoint is a searchable, geolocated address or landmark.
type AddressPoint struct {
	Label       string      `json:"label"`
	Address     string      `json:"address"`
	Zip         string      `json:"zip"`
	Type        string      `json:"type"`
	Coordinates Coordinates `json:"coordinates"`
}

// DisplayName returns the label, falling back to the street address.
func (p AddressPoint) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Address
}

// NeighborhoodBusinesses is the registered business count of one neighborhood.
type NeighborhoodBusinesses struct {
	Neighborhood  string `json:"neighborhood"`
	BusinessCount int    `json:"business_count"`
}

// TenureCounts splits a household count by owners and renters.
type TenureCounts struct {
	Owner  int `json:"owner"`
	Renter int `json:"renter"`
	Total  int `json:"total"`
}

// TenureShares splits a household share (0-1) by owners and renters.
type TenureShares struct {
	Owner  float64 `json:"owner"`
	Renter float64 `json:"renter"`
	Total  float64 `json:"total"`
}

// Of returns the share for a tenure group: "owner", "renter" or "total".
func (s TenureShares) Of(group string) float64 {
	switch group {
	case TenureOwner:
		return s.Owner
	case TenureRenter:
		return s.Renter
	case TenureTotal:
		return s.Total
	}
	return 0
}

// Tenure groups, in chart order.
const (
	TenureOwner  = "owner"
	TenureRenter = "renter"
	TenureTotal  = "total"
)

// HousingBurden is the citywide housing cost burden summary. Moderate burden
// is more than 30% and up to 50% of income on housing; severe is above 50%.
type HousingBurden struct {
	TotalHouseholds *TenureCounts `json:"total_households"`
	ModerateBurden  *TenureCounts `json:"moderate_burden"`
	SevereBurden    *TenureCounts `json:"severe_burden"`
	ModerateShare   *TenureShares `json:"moderate_burden_share,omitempty"`
	SevereShare     *TenureShares `json:"severe_burden_share,omitempty"`
}

// RentObservation is one monthly observed rent index value. Zori is nil when
// the month has no value.
type RentObservation struct {
	Date string   `json:"date"`
	Zori *float64 `json:"zori"`
}
