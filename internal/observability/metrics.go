package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the tour service.
type Metrics struct {
	// Guided tour metrics.
	ToursStarted      prometheus.Counter
	ToursFinished     prometheus.Counter
	ToursStopped      *prometheus.CounterVec // labels: reason={user,interrupt,data}
	SceneAdvances     *prometheus.CounterVec // labels: trigger={start,timer,narration}
	TourActive        prometheus.Gauge
	NarrationFailures prometheus.Counter

	// Highlight and exploration metrics.
	HighlightChanges *prometheus.CounterVec // labels: kind={tour,zip,address,neighborhood,none}
	ExploreRequests  *prometheus.CounterVec // labels: method={zip,address,locate}, outcome={found,not_found,invalid,error}

	// Dataset metrics.
	DatasetReloads *prometheus.CounterVec // labels: outcome={success,error}
	DatasetReady   prometheus.Gauge

	// Live client metrics.
	LiveClients prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ToursStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "tours_started_total",
			Help:      "Total guided tours started.",
		}),
		ToursFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "tours_finished_total",
			Help:      "Total guided tours that ran through the final scene.",
		}),
		ToursStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "tours_stopped_total",
			Help:      "Guided tours stopped before completion, by reason.",
		}, []string{"reason"}),
		SceneAdvances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "scene_advances_total",
			Help:      "Scene advances by the mechanism that paced the previous scene.",
		}, []string{"trigger"}),
		TourActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "civic_tour",
			Name:      "tour_active",
			Help:      "1 while a guided tour is running or paused, 0 otherwise.",
		}),
		NarrationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "narration_failures_total",
			Help:      "Utterances that ended in an error or timed out.",
		}),
		HighlightChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "highlight_changes_total",
			Help:      "Highlight set replacements by context kind.",
		}, []string{"kind"}),
		ExploreRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "explore_requests_total",
			Help:      "Exploration lookups by method and outcome.",
		}, []string{"method", "outcome"}),
		DatasetReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "dataset_reloads_total",
			Help:      "Dataset load attempts by outcome.",
		}, []string{"outcome"}),
		DatasetReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "civic_tour",
			Name:      "dataset_ready",
			Help:      "1 when a complete dataset snapshot is loaded, 0 otherwise.",
		}),
		LiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "civic_tour",
			Name:      "live_clients",
			Help:      "Connected WebSocket clients.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic_tour",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "civic_tour",
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
	}

	prometheus.MustRegister(
		m.ToursStarted,
		m.ToursFinished,
		m.ToursStopped,
		m.SceneAdvances,
		m.TourActive,
		m.NarrationFailures,
		m.HighlightChanges,
		m.ExploreRequests,
		m.DatasetReloads,
		m.DatasetReady,
		m.LiveClients,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ToursStarted:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "civic_tour", Name: "tours_started_total"}),
		ToursFinished:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "civic_tour", Name: "tours_finished_total"}),
		ToursStopped:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "civic_tour", Name: "tours_stopped_total"}, []string{"reason"}),
		SceneAdvances:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "civic_tour", Name: "scene_advances_total"}, []string{"trigger"}),
		TourActive:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "civic_tour", Name: "tour_active"}),
		NarrationFailures:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "civic_tour", Name: "narration_failures_total"}),
		HighlightChanges:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "civic_tour", Name: "highlight_changes_total"}, []string{"kind"}),
		ExploreRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "civic_tour", Name: "explore_requests_total"}, []string{"method", "outcome"}),
		DatasetReloads:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "civic_tour", Name: "dataset_reloads_total"}, []string{"outcome"}),
		DatasetReady:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "civic_tour", Name: "dataset_ready"}),
		LiveClients:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "civic_tour", Name: "live_clients"}),
		GeocodeRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "civic_tour", Name: "geocode_requests_total"}, []string{"method", "outcome"}),
		GeocodeCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "civic_tour", Name: "geocode_cache_total"}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "civic_tour", Name: "geocode_api_duration_seconds"}, []string{"method"}),
	}
}
