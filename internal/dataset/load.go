// Package dataset loads the processed open-data files the dashboard is built on
// and keeps the current snapshot available to readers.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/civic-data-tour/internal/domain"
)

// Processed dataset file names, relative to the data directory.
const (
	FileBusinessByZip = "business_by_zip.json"
	FileCentroids     = "neighborhood_centroids.json"
	FileParks         = "parks.json"
	FileFacilities    = "facilities.json"
	FileSchools       = "schools.json"
	FileAddressPoints = "address_points.json"
	FileSchoolCounts  = "school_counts_by_zip.json"

	FileBusinessNeighborhoods = "business_neighborhoods.json"
	FileHousingBurden         = "housing_burden.json"
	FileRentTrend             = "rent_trend.json"
)

// Files lists every file Load requires.
var Files = []string{
	FileBusinessByZip,
	FileCentroids,
	FileParks,
	FileFacilities,
	FileSchools,
	FileAddressPoints,
	FileSchoolCounts,
	FileBusinessNeighborhoods,
	FileHousingBurden,
	FileRentTrend,
}

// Snapshot is one consistent load of every dataset. It is never mutated after Load returns.
type Snapshot struct {
	Zips          map[string]domain.ZipEntry
	ZipList       []string
	Centroids     map[string]domain.Coordinates
	Parks         []domain.Park
	Facilities    []domain.Facility
	Schools       []domain.School
	AddressPoints []domain.AddressPoint
	SchoolCounts  map[string]domain.SchoolCounts

	// TotalBusinesses is the citywide listing count, from the file header or
	// else the sum over ZIP codes.
	TotalBusinesses int
	// BusinessNeighborhoods is ordered by business count, largest first.
	BusinessNeighborhoods []domain.NeighborhoodBusinesses
	Housing               domain.HousingBurden
	// Rent is the citywide monthly rent series in date order.
	Rent []domain.RentPoint
}

// Load reads every dataset from dir. Any missing or malformed file fails the
// whole load so readers never see partial data.
func Load(dir string) (*Snapshot, error) {
	byZip, err := readJSON[businessByZipFile](dir, FileBusinessByZip)
	if err != nil {
		return nil, err
	}
	if byZip.Entries == nil {
		return nil, fmt.Errorf("parse %s: %w", FileBusinessByZip, errMissingEntries)
	}
	zips := byZip.Entries
	centroids, err := readEntries[domain.NeighborhoodCentroid](dir, FileCentroids)
	if err != nil {
		return nil, err
	}
	parks, err := readEntries[domain.Park](dir, FileParks)
	if err != nil {
		return nil, err
	}
	facilities, err := readEntries[domain.Facility](dir, FileFacilities)
	if err != nil {
		return nil, err
	}
	schools, err := readEntries[domain.School](dir, FileSchools)
	if err != nil {
		return nil, err
	}
	points, err := readEntries[domain.AddressPoint](dir, FileAddressPoints)
	if err != nil {
		return nil, err
	}
	counts, err := readEntries[domain.SchoolCounts](dir, FileSchoolCounts)
	if err != nil {
		return nil, err
	}
	neighborhoods, err := readEntries[domain.NeighborhoodBusinesses](dir, FileBusinessNeighborhoods)
	if err != nil {
		return nil, err
	}
	housing, err := readJSON[domain.HousingBurden](dir, FileHousingBurden)
	if err != nil {
		return nil, err
	}
	rent, err := readEntries[domain.RentObservation](dir, FileRentTrend)
	if err != nil {
		return nil, err
	}

	s := &Snapshot{
		Zips:          make(map[string]domain.ZipEntry, len(zips)),
		ZipList:       make([]string, 0, len(zips)),
		Centroids:     make(map[string]domain.Coordinates, len(centroids)),
		Parks:         parks,
		Facilities:    facilities,
		Schools:       schools,
		AddressPoints: points,
		SchoolCounts:  make(map[string]domain.SchoolCounts, len(counts)),

		TotalBusinesses:       byZip.TotalBusinesses,
		BusinessNeighborhoods: make([]domain.NeighborhoodBusinesses, 0, len(neighborhoods)),
		Housing:               housing,
		Rent:                  domain.BuildRentSeries(rent),
	}
	for _, z := range zips {
		zip, ok := domain.NormalizeZip(z.Zip)
		if !ok {
			continue
		}
		z.Zip = zip
		if _, dup := s.Zips[zip]; !dup {
			s.ZipList = append(s.ZipList, zip)
		}
		s.Zips[zip] = z
	}
	sort.Strings(s.ZipList)
	for _, c := range centroids {
		if c.Neighborhood != "" && c.Centroid.Valid() {
			s.Centroids[c.Neighborhood] = c.Centroid
		}
	}
	for _, c := range counts {
		if zip, ok := domain.NormalizeZip(c.Zip); ok {
			c.Zip = zip
			s.SchoolCounts[zip] = c
		}
	}
	if len(s.Zips) == 0 {
		return nil, fmt.Errorf("%s: no ZIP entries", FileBusinessByZip)
	}
	if s.TotalBusinesses <= 0 {
		s.TotalBusinesses = 0
		for _, z := range s.Zips {
			s.TotalBusinesses += z.BusinessCount
		}
	}
	for _, n := range neighborhoods {
		if n.Neighborhood != "" {
			s.BusinessNeighborhoods = append(s.BusinessNeighborhoods, n)
		}
	}
	sort.SliceStable(s.BusinessNeighborhoods, func(i, j int) bool {
		return s.BusinessNeighborhoods[i].BusinessCount > s.BusinessNeighborhoods[j].BusinessCount
	})
	return s, nil
}

type businessByZipFile struct {
	TotalBusinesses int               `json:"total_businesses"`
	Entries         []domain.ZipEntry `json:"entries"`
}

type entriesFile[T any] struct {
	Entries []T `json:"entries"`
}

func readEntries[T any](dir, name string) ([]T, error) {
	f, err := readJSON[entriesFile[T]](dir, name)
	if err != nil {
		return nil, err
	}
	if f.Entries == nil {
		return nil, fmt.Errorf("parse %s: %w", name, errMissingEntries)
	}
	return f.Entries, nil
}

func readJSON[T any](dir, name string) (T, error) {
	var v T
	data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // dir comes from operator config
	if err != nil {
		return v, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

var errMissingEntries = errors.New(`missing "entries" array`)

// Zip looks up a normalised ZIP code.
func (s *Snapshot) Zip(zip string) (domain.ZipEntry, bool) {
	z, ok := s.Zips[zip]
	return z, ok
}

// ZipCentroid returns the entry's own centroid, else the mean of its top
// neighborhoods' centroids.
func (s *Snapshot) ZipCentroid(z domain.ZipEntry) (domain.Coordinates, bool) {
	if z.Centroid != nil && z.Centroid.Valid() {
		return *z.Centroid, true
	}
	points := make([]domain.Coordinates, 0, len(z.TopNeighborhoods))
	for _, name := range z.Neighborhoods() {
		if c, ok := s.Centroids[name]; ok {
			points = append(points, c)
		}
	}
	return domain.MeanCentroid(points)
}

// SuggestZips returns up to limit known ZIP codes sharing the longest prefix
// with input. With no shared prefix the first ZIPs in order are returned.
func (s *Snapshot) SuggestZips(input string, limit int) []string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, input)
	for n := min(len(digits), 4); n > 0; n-- {
		prefix := digits[:n]
		var out []string
		for _, z := range s.ZipList {
			if strings.HasPrefix(z, prefix) {
				out = append(out, z)
				if len(out) == limit {
					break
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return s.ZipList[:min(limit, len(s.ZipList))]
}

// HasCentroid reports whether the neighborhood can be placed on the map.
func (s *Snapshot) HasCentroid(neighborhood string) bool {
	_, ok := s.Centroids[neighborhood]
	return ok
}
