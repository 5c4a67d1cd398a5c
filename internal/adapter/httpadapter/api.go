package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/civic-data-tour/internal/dataset"
	"github.com/couchcryptid/civic-data-tour/internal/explore"
	"github.com/couchcryptid/civic-data-tour/internal/highlight"
	"github.com/couchcryptid/civic-data-tour/internal/narration"
	"github.com/couchcryptid/civic-data-tour/internal/tour"
)

const maxBodyBytes = 1 << 20

// TourController is the guided tour surface exposed over HTTP.
type TourController interface {
	Play()
	Pause()
	Resume()
	Toggle()
	Stop()
	SetNarrationEnabled(enabled bool)
	Snapshot() tour.Snapshot
}

// VoiceCatalog lists and selects narration voices.
type VoiceCatalog interface {
	Voices() []narration.Voice
	SelectedVoice() string
	SelectVoice(uri string) error
}

// Highlights reads the shared highlight set.
type Highlights interface {
	Current() highlight.Selection
}

// Explorer answers exploration lookups.
type Explorer interface {
	LookupZip(input string) (explore.ZipSummary, error)
	SearchAddress(ctx context.Context, query string) (explore.AddressResult, error)
	Locate(ctx context.Context, lat, lon float64) (explore.LocateResult, error)
	HighlightNeighborhoods(names []string) highlight.Selection
	Reset() highlight.Selection
	HousingBurden() (explore.HousingView, error)
	RentTrend(mode string, startYear int) (explore.RentView, error)
	BusinessDensity() ([]explore.NeighborhoodDensity, error)
}

// State is everything a dashboard needs to render from scratch.
type State struct {
	Tour          tour.Snapshot       `json:"tour"`
	Highlight     highlight.Selection `json:"highlight"`
	Voices        []narration.Voice   `json:"voices"`
	SelectedVoice string              `json:"selected_voice,omitempty"`
}

// VoiceList is the response body for the voice endpoints.
type VoiceList struct {
	Voices   []narration.Voice `json:"voices"`
	Selected string            `json:"selected,omitempty"`
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// API serves the dashboard's JSON endpoints.
type API struct {
	tour       TourController
	voices     VoiceCatalog
	highlights Highlights
	explorer   Explorer
	logger     *slog.Logger
}

// NewAPI creates the API. voices may be nil when narration is unavailable.
func NewAPI(t TourController, voices VoiceCatalog, highlights Highlights, explorer Explorer, logger *slog.Logger) *API {
	return &API{
		tour:       t,
		voices:     voices,
		highlights: highlights,
		explorer:   explorer,
		logger:     logger,
	}
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", a.handleState)

	mux.HandleFunc("GET /api/tour", a.handleTour)
	mux.HandleFunc("POST /api/tour/narration", a.handleNarration)
	mux.HandleFunc("POST /api/tour/{action}", a.handleTourAction)

	mux.HandleFunc("GET /api/voices", a.handleVoices)
	mux.HandleFunc("POST /api/voices/select", a.handleSelectVoice)

	mux.HandleFunc("GET /api/highlight", a.handleHighlight)
	mux.HandleFunc("POST /api/highlight", a.handleSetHighlight)
	mux.HandleFunc("DELETE /api/highlight", a.handleClearHighlight)

	mux.HandleFunc("GET /api/zip/{zip}", a.handleZip)
	mux.HandleFunc("GET /api/address", a.handleAddress)
	mux.HandleFunc("GET /api/locate", a.handleLocate)

	mux.HandleFunc("GET /api/housing", a.handleHousing)
	mux.HandleFunc("GET /api/rent", a.handleRent)
	mux.HandleFunc("GET /api/neighborhoods", a.handleNeighborhoods)
}

// State returns the full dashboard state.
func (a *API) State() State {
	s := State{
		Tour:      a.tour.Snapshot(),
		Highlight: a.highlights.Current(),
		Voices:    []narration.Voice{},
	}
	if a.voices != nil {
		if v := a.voices.Voices(); v != nil {
			s.Voices = v
		}
		s.SelectedVoice = a.voices.SelectedVoice()
	}
	return s
}

func (a *API) handleState(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, a.State())
}

func (a *API) handleTour(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, a.tour.Snapshot())
}

func (a *API) handleTourAction(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("action") {
	case "play":
		a.tour.Play()
	case "pause":
		a.tour.Pause()
	case "resume":
		a.tour.Resume()
	case "toggle":
		a.tour.Toggle()
	case "stop":
		a.tour.Stop()
	default:
		writeError(w, http.StatusNotFound, "unknown tour action")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, a.tour.Snapshot())
}

func (a *API) handleNarration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	a.tour.SetNarrationEnabled(*body.Enabled)
	sharedobs.WriteJSON(w, http.StatusOK, a.tour.Snapshot())
}

func (a *API) handleVoices(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, a.voiceList())
}

func (a *API) handleSelectVoice(w http.ResponseWriter, r *http.Request) {
	if a.voices == nil {
		writeError(w, http.StatusNotFound, "narration is not available")
		return
	}
	var body struct {
		URI string `json:"uri"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.URI == "" {
		writeError(w, http.StatusBadRequest, `body must be {"uri": "..."}`)
		return
	}
	if err := a.voices.SelectVoice(body.URI); err != nil {
		a.fail(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, a.voiceList())
}

func (a *API) voiceList() VoiceList {
	list := VoiceList{Voices: []narration.Voice{}}
	if a.voices == nil {
		return list
	}
	if v := a.voices.Voices(); v != nil {
		list.Voices = v
	}
	list.Selected = a.voices.SelectedVoice()
	return list
}

func (a *API) handleHighlight(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, a.highlights.Current())
}

func (a *API) handleSetHighlight(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Names []string `json:"names"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, `body must be {"names": [...]}`)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, a.explorer.HighlightNeighborhoods(body.Names))
}

func (a *API) handleClearHighlight(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, a.explorer.Reset())
}

func (a *API) handleZip(w http.ResponseWriter, r *http.Request) {
	summary, err := a.explorer.LookupZip(r.PathValue("zip"))
	if err != nil {
		a.fail(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, summary)
}

func (a *API) handleAddress(w http.ResponseWriter, r *http.Request) {
	res, err := a.explorer.SearchAddress(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.fail(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (a *API) handleLocate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, http.StatusBadRequest, "lat and lon must be numbers")
		return
	}
	res, err := a.explorer.Locate(r.Context(), lat, lon)
	if err != nil {
		a.fail(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (a *API) handleHousing(w http.ResponseWriter, _ *http.Request) {
	view, err := a.explorer.HousingBurden()
	if err != nil {
		a.fail(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, view)
}

func (a *API) handleRent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start := 0
	if s := q.Get("start"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be a year")
			return
		}
		start = n
	}
	view, err := a.explorer.RentTrend(q.Get("mode"), start)
	if err != nil {
		a.fail(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, view)
}

func (a *API) handleNeighborhoods(w http.ResponseWriter, _ *http.Request) {
	density, err := a.explorer.BusinessDensity()
	if err != nil {
		a.fail(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, density)
}

// fail maps domain errors to HTTP status codes.
func (a *API) fail(w http.ResponseWriter, err error) {
	var notFound *explore.ZipNotFoundError
	switch {
	case errors.As(err, &notFound):
		sharedobs.WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Suggestions: notFound.Suggestions})
	case errors.Is(err, explore.ErrAddressNotFound), errors.Is(err, narration.ErrUnknownVoice):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, explore.ErrInvalidZip), errors.Is(err, explore.ErrEmptyQuery), errors.Is(err, explore.ErrInvalidCoordinates),
		errors.Is(err, explore.ErrInvalidRentMode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dataset.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "city datasets are still loading")
	default:
		a.logger.Error("api request failed", "error", err)
		writeError(w, http.StatusBadGateway, "lookup failed, try again shortly")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, ErrorResponse{Error: msg})
}
