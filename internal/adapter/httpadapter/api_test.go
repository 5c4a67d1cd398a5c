package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/civic-data-tour/internal/adapter/httpadapter"
	"github.com/couchcryptid/civic-data-tour/internal/dataset"
	"github.com/couchcryptid/civic-data-tour/internal/domain"
	"github.com/couchcryptid/civic-data-tour/internal/explore"
	"github.com/couchcryptid/civic-data-tour/internal/highlight"
	"github.com/couchcryptid/civic-data-tour/internal/narration"
	"github.com/couchcryptid/civic-data-tour/internal/tour"
)

// --- mocks ---

type fakeTour struct {
	calls     []string
	narration *bool
	snap      tour.Snapshot
}

func (f *fakeTour) Play()   { f.calls = append(f.calls, "play") }
func (f *fakeTour) Pause()  { f.calls = append(f.calls, "pause") }
func (f *fakeTour) Resume() { f.calls = append(f.calls, "resume") }
func (f *fakeTour) Toggle() { f.calls = append(f.calls, "toggle") }
func (f *fakeTour) Stop()   { f.calls = append(f.calls, "stop") }

func (f *fakeTour) SetNarrationEnabled(enabled bool) { f.narration = &enabled }
func (f *fakeTour) Snapshot() tour.Snapshot         { return f.snap }

type fakeVoices struct {
	voices   []narration.Voice
	selected string
}

func (f *fakeVoices) Voices() []narration.Voice { return f.voices }
func (f *fakeVoices) SelectedVoice() string     { return f.selected }

func (f *fakeVoices) SelectVoice(uri string) error {
	for _, v := range f.voices {
		if v.URI == uri {
			f.selected = uri
			return nil
		}
	}
	return narration.ErrUnknownVoice
}

type fakeExplorer struct {
	zip       explore.ZipSummary
	address   explore.AddressResult
	locate    explore.LocateResult
	housing   explore.HousingView
	rent      explore.RentView
	density   []explore.NeighborhoodDensity
	err       error
	lastQuery string
	lastLat   float64
	lastLon   float64
	hovered   []string
	resets    int
	lastMode  string
	lastStart int
}

func (f *fakeExplorer) LookupZip(input string) (explore.ZipSummary, error) {
	f.lastQuery = input
	return f.zip, f.err
}

func (f *fakeExplorer) SearchAddress(_ context.Context, q string) (explore.AddressResult, error) {
	f.lastQuery = q
	return f.address, f.err
}

func (f *fakeExplorer) Locate(_ context.Context, lat, lon float64) (explore.LocateResult, error) {
	f.lastLat, f.lastLon = lat, lon
	return f.locate, f.err
}

func (f *fakeExplorer) HighlightNeighborhoods(names []string) highlight.Selection {
	f.hovered = names
	return highlight.Selection{Names: names, Context: highlight.Context{Kind: highlight.KindNeighborhood}}
}

func (f *fakeExplorer) Reset() highlight.Selection {
	f.resets++
	return highlight.Selection{Context: highlight.Context{Kind: highlight.KindNone}, Message: highlight.DefaultMessage}
}

func (f *fakeExplorer) HousingBurden() (explore.HousingView, error) { return f.housing, f.err }

func (f *fakeExplorer) RentTrend(mode string, startYear int) (explore.RentView, error) {
	f.lastMode, f.lastStart = mode, startYear
	return f.rent, f.err
}

func (f *fakeExplorer) BusinessDensity() ([]explore.NeighborhoodDensity, error) {
	return f.density, f.err
}

type staticHighlights struct{ sel highlight.Selection }

func (s staticHighlights) Current() highlight.Selection { return s.sel }

// --- helpers ---

type apiFixture struct {
	srv      *httpadapter.Server
	tour     *fakeTour
	voices   *fakeVoices
	explorer *fakeExplorer
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	f := apiFixture{
		tour: &fakeTour{snap: tour.Snapshot{State: tour.StateIdle, SceneIndex: -1, SceneCount: 5, DataReady: true}},
		voices: &fakeVoices{voices: []narration.Voice{
			{URI: "jenny", Name: "Microsoft Jenny Online (Natural)", Lang: "en-US"},
			{URI: "alex", Name: "Alex", Lang: "en-US"},
		}, selected: "jenny"},
		explorer: &fakeExplorer{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hl := staticHighlights{sel: highlight.Selection{Names: []string{"Mission"}, Seq: 4}}
	api := httpadapter.NewAPI(f.tour, f.voices, hl, f.explorer, logger)
	f.srv = httpadapter.NewServer(":0", &mockReadiness{}, api, nil, logger)
	return f
}

func (f apiFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// --- tests ---

func TestAPI_TourActions(t *testing.T) {
	f := newAPIFixture(t)

	for _, action := range []string{"play", "pause", "resume", "toggle", "stop"} {
		rec := f.do(t, http.MethodPost, "/api/tour/"+action, "")
		require.Equal(t, http.StatusOK, rec.Code, action)
		snap := decode[tour.Snapshot](t, rec)
		assert.Equal(t, 5, snap.SceneCount)
	}
	assert.Equal(t, []string{"play", "pause", "resume", "toggle", "stop"}, f.tour.calls)

	rec := f.do(t, http.MethodPost, "/api/tour/rewind", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/tour/play", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPI_GetTour(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/tour", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tour.StateIdle, decode[tour.Snapshot](t, rec).State)
}

func TestAPI_Narration(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/tour/narration", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.tour.narration)
	assert.False(t, *f.tour.narration)

	for _, body := range []string{`{}`, `not json`, `{"enabled": true, "extra": 1}`} {
		rec = f.do(t, http.MethodPost, "/api/tour/narration", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, f.tour.calls, "narration is not routed as a tour action")
}

func TestAPI_Voices(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/voices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[httpadapter.VoiceList](t, rec)
	assert.Len(t, list.Voices, 2)
	assert.Equal(t, "jenny", list.Selected)

	rec = f.do(t, http.MethodPost, "/api/voices/select", `{"uri": "alex"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alex", decode[httpadapter.VoiceList](t, rec).Selected)

	rec = f.do(t, http.MethodPost, "/api/voices/select", `{"uri": "zira"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/voices/select", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_VoicesWithoutNarration(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := httpadapter.NewAPI(&fakeTour{}, nil, staticHighlights{}, &fakeExplorer{}, logger)
	srv := httpadapter.NewServer(":0", &mockReadiness{}, api, nil, logger)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/voices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"voices": []}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/voices/select", strings.NewReader(`{"uri":"x"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_State(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	state := decode[httpadapter.State](t, rec)
	assert.Equal(t, 5, state.Tour.SceneCount)
	assert.Equal(t, []string{"Mission"}, state.Highlight.Names)
	assert.Equal(t, "jenny", state.SelectedVoice)
	assert.Len(t, state.Voices, 2)
}

func TestAPI_Highlight(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/highlight", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(4), decode[highlight.Selection](t, rec).Seq)

	rec = f.do(t, http.MethodPost, "/api/highlight", `{"names": ["Mission", "Tenderloin"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Mission", "Tenderloin"}, f.explorer.hovered)

	rec = f.do(t, http.MethodDelete, "/api/highlight", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.explorer.resets)
	assert.Equal(t, highlight.DefaultMessage, decode[highlight.Selection](t, rec).Message)

	rec = f.do(t, http.MethodPost, "/api/highlight", `{"names": "Mission"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Zip(t *testing.T) {
	f := newAPIFixture(t)
	f.explorer.zip = explore.ZipSummary{Zip: "94110", BusinessCount: 14210}

	rec := f.do(t, http.MethodGet, "/api/zip/94110", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "94110", f.explorer.lastQuery)
	assert.Equal(t, 14210, decode[explore.ZipSummary](t, rec).BusinessCount)
}

func TestAPI_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   httpadapter.ErrorResponse
	}{
		{
			name:   "zip not found carries suggestions",
			err:    &explore.ZipNotFoundError{Zip: "94999", Suggestions: []string{"94102", "94110"}},
			status: http.StatusNotFound,
			want: httpadapter.ErrorResponse{
				Error:       "ZIP 94999 is not in the dataset. Try one of these: 94102, 94110.",
				Suggestions: []string{"94102", "94110"},
			},
		},
		{"invalid zip", explore.ErrInvalidZip, http.StatusBadRequest, httpadapter.ErrorResponse{Error: explore.ErrInvalidZip.Error()}},
		{"not loaded", dataset.ErrNotLoaded, http.StatusServiceUnavailable, httpadapter.ErrorResponse{Error: "city datasets are still loading"}},
		{"upstream failure", errors.New("mapbox: 500"), http.StatusBadGateway, httpadapter.ErrorResponse{Error: "lookup failed, try again shortly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			f.explorer.err = tt.err

			rec := f.do(t, http.MethodGet, "/api/zip/94999", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, decode[httpadapter.ErrorResponse](t, rec))
		})
	}
}

func TestAPI_Address(t *testing.T) {
	f := newAPIFixture(t)
	f.explorer.address = explore.AddressResult{Label: "City Hall", Source: explore.SourceDataset}

	rec := f.do(t, http.MethodGet, "/api/address?q=city+hall", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "city hall", f.explorer.lastQuery)
	assert.Equal(t, "City Hall", decode[explore.AddressResult](t, rec).Label)

	f.explorer.err = explore.ErrAddressNotFound
	rec = f.do(t, http.MethodGet, "/api/address?q=coit", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.explorer.err = explore.ErrEmptyQuery
	rec = f.do(t, http.MethodGet, "/api/address", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Locate(t *testing.T) {
	f := newAPIFixture(t)
	f.explorer.locate = explore.LocateResult{
		Coordinates: domain.Coordinates{Lat: 37.7793, Lon: -122.4193},
		Zip:         "94102",
	}

	rec := f.do(t, http.MethodGet, "/api/locate?lat=37.7793&lon=-122.4193", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 37.7793, f.explorer.lastLat, 1e-9)
	assert.InDelta(t, -122.4193, f.explorer.lastLon, 1e-9)
	assert.Equal(t, "94102", decode[explore.LocateResult](t, rec).Zip)

	rec = f.do(t, http.MethodGet, "/api/locate?lat=north&lon=-122.4", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.explorer.err = explore.ErrInvalidCoordinates
	rec = f.do(t, http.MethodGet, "/api/locate?lat=0&lon=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Housing(t *testing.T) {
	f := newAPIFixture(t)
	f.explorer.housing = explore.HousingView{Groups: []explore.HousingGroup{
		{Group: "renter", Label: "Renter", ModeratePct: 18, SeverePct: 21, TotalPct: 39},
	}}

	rec := f.do(t, http.MethodGet, "/api/housing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.explorer.housing, decode[explore.HousingView](t, rec))

	f.explorer.err = dataset.ErrNotLoaded
	rec = f.do(t, http.MethodGet, "/api/housing", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPI_Rent(t *testing.T) {
	f := newAPIFixture(t)
	f.explorer.rent = explore.RentView{
		Mode:      explore.RentModeChange,
		Label:     explore.RentLabelChange,
		StartYear: 2020,
		Points:    []explore.RentValue{{Date: "2020-01-31", Value: 5}},
	}

	rec := f.do(t, http.MethodGet, "/api/rent?mode=change&start=2020", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "change", f.explorer.lastMode)
	assert.Equal(t, 2020, f.explorer.lastStart)
	assert.Equal(t, f.explorer.rent, decode[explore.RentView](t, rec))

	rec = f.do(t, http.MethodGet, "/api/rent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.explorer.lastMode)
	assert.Zero(t, f.explorer.lastStart)

	rec = f.do(t, http.MethodGet, "/api/rent?start=last-year", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.explorer.err = explore.ErrInvalidRentMode
	rec = f.do(t, http.MethodGet, "/api/rent?mode=yoy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, explore.ErrInvalidRentMode.Error(), decode[httpadapter.ErrorResponse](t, rec).Error)
}

func TestAPI_Neighborhoods(t *testing.T) {
	f := newAPIFixture(t)
	f.explorer.density = []explore.NeighborhoodDensity{
		{Neighborhood: "Mission", BusinessCount: 20110, ShareOfCity: 0.0967, Centroid: domain.Coordinates{Lat: 37.7599, Lon: -122.4148}},
	}

	rec := f.do(t, http.MethodGet, "/api/neighborhoods", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.explorer.density, decode[[]explore.NeighborhoodDensity](t, rec))
}
