package highlight

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/civic-data-tour/internal/observability"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHub_AttachRendersCurrent(t *testing.T) {
	h := newTestHub()
	var got []Selection
	h.Attach(ViewFunc(func(sel Selection) { got = append(got, sel) }))

	require.Len(t, got, 1)
	assert.Empty(t, got[0].Names)
	assert.Equal(t, KindNone, got[0].Context.Kind)
	assert.Equal(t, DefaultMessage, got[0].Message)
}

func TestHub_SetActiveRendersEveryViewInOrder(t *testing.T) {
	h := newTestHub()
	var order []string
	h.Attach(ViewFunc(func(sel Selection) { order = append(order, "map") }))
	h.Attach(ViewFunc(func(sel Selection) { order = append(order, "bars") }))
	order = nil

	sel := h.SetActive([]string{"Mission", " ", "Mission", "Tenderloin"}, Context{Kind: KindNeighborhood, Originator: "hover"})

	assert.Equal(t, []string{"map", "bars"}, order)
	assert.Equal(t, []string{"Mission", "Tenderloin"}, sel.Names)
	assert.True(t, sel.Has("Tenderloin"))
	assert.False(t, sel.Has("Sunset/Parkside"))
	assert.Equal(t, sel, h.Current())
	assert.Equal(t, "Mission and Tenderloin highlighted on both maps.", h.Message())
}

func TestHub_SeqIncreases(t *testing.T) {
	h := newTestHub()
	first := h.SetActive([]string{"Mission"}, Context{Kind: KindTour, Originator: OriginTour})
	second := h.Clear()
	assert.Greater(t, second.Seq, first.Seq)
}

func TestHub_ExternalCallbacks(t *testing.T) {
	h := newTestHub()
	calls := 0
	h.OnExternal(func() { calls++ })

	h.SetActive([]string{"Mission"}, Context{Kind: KindTour, Originator: OriginTour})
	assert.Equal(t, 0, calls, "tour selections are not external")

	h.Clear()
	assert.Equal(t, 0, calls, "clearing is not external")

	h.SetActive([]string{"Mission"}, Context{Kind: KindZip, Originator: "zip-search", Zip: "94110"})
	assert.Equal(t, 1, calls)

	h.SetActive([]string{"Mission"}, Context{})
	assert.Equal(t, 2, calls, "blank context defaults to a neighborhood selection")
}

func TestHub_ExternalCallbackCanReadHub(t *testing.T) {
	h := newTestHub()
	var before Selection
	h.OnExternal(func() { before = h.Current() })

	h.SetActive([]string{"Mission"}, Context{Kind: KindTour, Originator: OriginTour, Message: "tour"})
	h.SetActive([]string{"Bayview Hunters Point"}, Context{Kind: KindNeighborhood})

	assert.Equal(t, []string{"Mission"}, before.Names, "callback runs before the new set is applied")
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		ctx   Context
		want  string
	}{
		{"empty", nil, Context{Kind: KindNone}, DefaultMessage},
		{"tour message", []string{"Mission"}, Context{Kind: KindTour, Message: "Scene caption"}, "Scene caption"},
		{"tour without targets", nil, Context{Kind: KindTour, Message: "Explore now"}, "Explore now"},
		{"zip", []string{"Mission", "Bernal Heights"}, Context{Kind: KindZip, Zip: "94110"}, "ZIP 94110 lights up Mission and Bernal Heights on both maps."},
		{"address with zip", []string{"Tenderloin"}, Context{Kind: KindAddress, AddressLabel: "City Hall", Zip: "94102"}, "City Hall highlights Tenderloin in ZIP 94102."},
		{"address unlabeled", []string{"Tenderloin"}, Context{Kind: KindAddress}, "Selected address highlights Tenderloin."},
		{"address only zip", nil, Context{Kind: KindAddress, AddressLabel: "City Hall", Zip: "94102"}, "City Hall highlighted within ZIP 94102."},
		{"address pin", nil, Context{Kind: KindAddress, AddressLabel: "City Hall"}, "City Hall pinpointed on the map."},
		{"other kind", []string{"A", "B", "C"}, Context{Kind: "custom"}, "A, B, and C highlighted across the maps."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describe(Selection{Names: tt.names, Context: tt.ctx})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatList(t *testing.T) {
	assert.Empty(t, FormatList(nil))
	assert.Equal(t, "A", FormatList([]string{"A"}))
	assert.Equal(t, "A and B", FormatList([]string{"A", "B"}))
	assert.Equal(t, "A, B, and C", FormatList([]string{"A", "B", "C"}))
}

func TestMetricsView(t *testing.T) {
	m := observability.NewMetricsForTesting()
	h := newTestHub()
	h.Attach(MetricsView(m))

	h.SetActive([]string{"Mission"}, Context{Kind: KindZip, Zip: "94110"})
	h.SetActive([]string{"Mission"}, Context{Kind: KindZip, Zip: "94110"})
	h.Clear()

	assert.InDelta(t, 2, testutil.ToFloat64(m.HighlightChanges.WithLabelValues(KindZip)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.HighlightChanges.WithLabelValues(KindNone)), 0, "attach renders the initial empty set")
}
