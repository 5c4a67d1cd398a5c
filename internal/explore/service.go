// Package explore answers the Open Exploration lookups: ZIP codes, free-text
// addresses and map coordinates. Each successful lookup also updates the shared
// highlight set, which interrupts a running tour. It also serves the chart
// data behind the insight sections.
package explore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/couchcryptid/civic-data-tour/internal/dataset"
	"github.com/couchcryptid/civic-data-tour/internal/domain"
	"github.com/couchcryptid/civic-data-tour/internal/highlight"
	"github.com/couchcryptid/civic-data-tour/internal/observability"
)

// Region biases forward geocoding toward the city.
const Region = "San Francisco, CA"

// Highlight originators for user-driven selections.
const (
	OriginZipSearch     = "zip-search"
	OriginAddressSearch = "address-search"
	OriginHover         = "hover"
)

const suggestionLimit = 5

var (
	ErrInvalidZip         = errors.New("please enter a five-digit San Francisco ZIP code")
	ErrZipNotFound        = errors.New("zip code not in dataset")
	ErrEmptyQuery         = errors.New("enter an address or landmark to locate")
	ErrAddressNotFound    = errors.New("address not found in city datasets; try including a street number or ZIP")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)

// ZipNotFoundError carries suggestions for an unknown ZIP code.
type ZipNotFoundError struct {
	Zip         string
	Suggestions []string
}

func (e *ZipNotFoundError) Error() string {
	return fmt.Sprintf("ZIP %s is not in the dataset. Try one of these: %s.", e.Zip, strings.Join(e.Suggestions, ", "))
}

func (e *ZipNotFoundError) Unwrap() error { return ErrZipNotFound }

// Snapshots provides the current datasets.
type Snapshots interface {
	Get() (*dataset.Snapshot, error)
}

// Highlighter is the shared highlight set.
type Highlighter interface {
	SetActive(names []string, ctx highlight.Context) highlight.Selection
	Clear() highlight.Selection
}

// ZipSummary describes one ZIP code.
type ZipSummary struct {
	Zip           string               `json:"zip"`
	BusinessCount int                  `json:"business_count"`
	ShareOfCity   float64              `json:"share_of_city"`
	TopSectors    []domain.SectorCount `json:"top_sectors"`
	Neighborhoods []string             `json:"neighborhoods"`
	Centroid      *domain.Coordinates  `json:"centroid,omitempty"`
	Schools       *domain.SchoolCounts `json:"schools,omitempty"`
	Highlight     string               `json:"highlight,omitempty"`
}

// Nearby lists the closest resource of each kind.
type Nearby struct {
	Park     *domain.Ranked[domain.Park]     `json:"park,omitempty"`
	Facility *domain.Ranked[domain.Facility] `json:"facility,omitempty"`
	School   *domain.Ranked[domain.School]   `json:"school,omitempty"`
}

// Address result sources.
const (
	SourceZip      = "zip"
	SourceDataset  = "dataset"
	SourceGeocoder = "geocoder"
)

// AddressResult is a located address with its surroundings.
type AddressResult struct {
	Label       string             `json:"label"`
	Address     string             `json:"address,omitempty"`
	Source      string             `json:"source"`
	Coordinates domain.Coordinates `json:"coordinates"`
	Zip         *ZipSummary        `json:"zip,omitempty"`
	Nearby      Nearby             `json:"nearby"`
	Highlight   string             `json:"highlight"`
}

// LocateResult describes what surrounds a coordinate.
type LocateResult struct {
	Coordinates domain.Coordinates `json:"coordinates"`
	Label       string             `json:"label,omitempty"`
	Zip         string             `json:"zip,omitempty"`
	Nearby      Nearby             `json:"nearby"`
}

// Service implements the exploration lookups.
type Service struct {
	data     Snapshots
	hub      Highlighter
	geocoder domain.Geocoder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService creates a Service. geocoder may be nil, in which case addresses
// are only resolved against the city datasets.
func NewService(data Snapshots, hub Highlighter, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		data:     data,
		hub:      hub,
		geocoder: geocoder,
		logger:   logger,
		metrics:  metrics,
	}
}

// LookupZip summarises a ZIP code and highlights its top neighborhoods.
func (s *Service) LookupZip(input string) (ZipSummary, error) {
	zip, ok := domain.NormalizeZip(input)
	if !ok {
		s.observe("zip", ErrInvalidZip)
		return ZipSummary{}, ErrInvalidZip
	}
	snap, err := s.data.Get()
	if err != nil {
		s.observe("zip", err)
		return ZipSummary{}, err
	}
	entry, ok := snap.Zip(zip)
	if !ok {
		err := &ZipNotFoundError{Zip: zip, Suggestions: snap.SuggestZips(zip, suggestionLimit)}
		s.observe("zip", err)
		return ZipSummary{}, err
	}

	summary := summarize(snap, entry)
	sel := s.hub.SetActive(summary.Neighborhoods, highlight.Context{
		Kind:       highlight.KindZip,
		Originator: OriginZipSearch,
		Zip:        zip,
	})
	summary.Highlight = sel.Message
	s.observe("zip", nil)
	return summary, nil
}

// SearchAddress resolves a free-text address. A known ZIP inside the query
// wins, then the best dataset match, then the geocoder.
func (s *Service) SearchAddress(ctx context.Context, query string) (AddressResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		s.observe("address", ErrEmptyQuery)
		return AddressResult{}, ErrEmptyQuery
	}
	snap, err := s.data.Get()
	if err != nil {
		s.observe("address", err)
		return AddressResult{}, err
	}

	if entry, ok := snap.Zip(domain.ExtractZip(q)); ok {
		summary := summarize(snap, entry)
		sel := s.hub.SetActive(summary.Neighborhoods, highlight.Context{
			Kind:       highlight.KindZip,
			Originator: OriginAddressSearch,
			Zip:        entry.Zip,
		})
		summary.Highlight = sel.Message
		res := AddressResult{
			Label:     "ZIP " + entry.Zip,
			Source:    SourceZip,
			Zip:       &summary,
			Highlight: sel.Message,
		}
		if summary.Centroid != nil {
			res.Coordinates = *summary.Centroid
			res.Nearby = nearby(snap, *summary.Centroid)
		}
		s.observe("address", nil)
		return res, nil
	}

	if point, ok := domain.FindAddressPoint(snap.AddressPoints, q); ok && point.Coordinates.Valid() {
		s.observe("address", nil)
		return s.focusAddress(snap, point, SourceDataset), nil
	}

	if s.geocoder != nil {
		point, err := s.geocode(ctx, q)
		if err != nil {
			// Geocoder outages degrade to a dataset-only miss.
			s.logger.Warn("forward geocode failed", "error", err, "query", q)
			s.observe("address", err)
			return AddressResult{}, ErrAddressNotFound
		}
		if point.Coordinates.Valid() {
			s.observe("address", nil)
			return s.focusAddress(snap, point, SourceGeocoder), nil
		}
	}

	s.observe("address", ErrAddressNotFound)
	return AddressResult{}, ErrAddressNotFound
}

// Locate lists the resources nearest to a coordinate. The label comes from
// reverse geocoding when available; geocoder failures are not fatal.
func (s *Service) Locate(ctx context.Context, lat, lon float64) (LocateResult, error) {
	c := domain.Coordinates{Lat: lat, Lon: lon}
	if !c.Valid() || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		s.observe("locate", ErrInvalidCoordinates)
		return LocateResult{}, ErrInvalidCoordinates
	}
	snap, err := s.data.Get()
	if err != nil {
		s.observe("locate", err)
		return LocateResult{}, err
	}

	res := LocateResult{Coordinates: c, Nearby: nearby(snap, c)}
	if s.geocoder != nil {
		g, err := s.geocoder.ReverseGeocode(ctx, lat, lon)
		switch {
		case err != nil:
			s.logger.Warn("reverse geocode failed", "error", err, "lat", lat, "lon", lon)
		case g.Found():
			res.Label = g.FormattedAddress
			if zip, ok := domain.NormalizeZip(g.Postcode); ok {
				res.Zip = zip
			}
		}
	}
	s.observe("locate", nil)
	return res, nil
}

// HighlightNeighborhoods highlights neighborhoods picked directly on a chart or map.
func (s *Service) HighlightNeighborhoods(names []string) highlight.Selection {
	return s.hub.SetActive(names, highlight.Context{
		Kind:       highlight.KindNeighborhood,
		Originator: OriginHover,
	})
}

// Reset clears the highlight set.
func (s *Service) Reset() highlight.Selection {
	return s.hub.Clear()
}

func (s *Service) geocode(ctx context.Context, q string) (domain.AddressPoint, error) {
	g, err := s.geocoder.ForwardGeocode(ctx, q, Region)
	if err != nil {
		return domain.AddressPoint{}, fmt.Errorf("geocode address: %w", err)
	}
	if !g.Found() {
		return domain.AddressPoint{}, nil
	}
	zip, _ := domain.NormalizeZip(g.Postcode)
	if zip == "" {
		zip = domain.ExtractZip(g.FormattedAddress)
	}
	label := g.PlaceName
	if label == "" {
		label = g.FormattedAddress
	}
	return domain.AddressPoint{
		Label:       label,
		Address:     g.FormattedAddress,
		Zip:         zip,
		Type:        SourceGeocoder,
		Coordinates: domain.Coordinates{Lat: g.Lat, Lon: g.Lon},
	}, nil
}

func (s *Service) focusAddress(snap *dataset.Snapshot, point domain.AddressPoint, source string) AddressResult {
	label := point.DisplayName()
	res := AddressResult{
		Label:       label,
		Address:     point.Address,
		Source:      source,
		Coordinates: point.Coordinates,
		Nearby:      nearby(snap, point.Coordinates),
	}

	ctx := highlight.Context{
		Kind:         highlight.KindAddress,
		Originator:   OriginAddressSearch,
		AddressLabel: label,
	}
	var names []string
	if entry, ok := snap.Zip(point.Zip); ok {
		summary := summarize(snap, entry)
		res.Zip = &summary
		names = summary.Neighborhoods
		ctx.Zip = entry.Zip
	}
	sel := s.hub.SetActive(names, ctx)
	res.Highlight = sel.Message
	if res.Zip != nil {
		res.Zip.Highlight = sel.Message
	}
	return res
}

func summarize(snap *dataset.Snapshot, entry domain.ZipEntry) ZipSummary {
	summary := ZipSummary{
		Zip:           entry.Zip,
		BusinessCount: entry.BusinessCount,
		ShareOfCity:   entry.ShareOfCity,
		TopSectors:    entry.TopSectors,
		Neighborhoods: entry.Neighborhoods(),
	}
	if c, ok := snap.ZipCentroid(entry); ok {
		summary.Centroid = &c
	}
	if counts, ok := snap.SchoolCounts[entry.Zip]; ok {
		summary.Schools = &counts
	}
	return summary
}

func nearby(snap *dataset.Snapshot, at domain.Coordinates) Nearby {
	var n Nearby
	if r := domain.Nearest(snap.Parks, func(p domain.Park) domain.Coordinates { return p.Coordinates }, at, 1); len(r) > 0 {
		n.Park = &r[0]
	}
	if r := domain.Nearest(snap.Facilities, func(f domain.Facility) domain.Coordinates { return f.Coordinates }, at, 1); len(r) > 0 {
		n.Facility = &r[0]
	}
	if r := domain.Nearest(snap.Schools, func(sc domain.School) domain.Coordinates { return sc.Coordinates }, at, 1); len(r) > 0 {
		n.School = &r[0]
	}
	return n
}

func (s *Service) observe(method string, err error) {
	outcome := "found"
	switch {
	case err == nil:
	case errors.Is(err, ErrZipNotFound), errors.Is(err, ErrAddressNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrInvalidZip), errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrInvalidCoordinates),
		errors.Is(err, ErrInvalidRentMode):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	s.metrics.ExploreRequests.WithLabelValues(method, outcome).Inc()
}
