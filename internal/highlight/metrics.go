package highlight

import "github.com/couchcryptid/civic-data-tour/internal/observability"

// MetricsView counts highlight changes by context kind.
func MetricsView(m *observability.Metrics) View {
	return ViewFunc(func(sel Selection) {
		m.HighlightChanges.WithLabelValues(sel.Context.Kind).Inc()
	})
}
