// Package highlight owns the process-wide set of emphasised neighborhoods and
// fans every change out to the views that depend on it.
package highlight

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Context kinds.
const (
	KindNone         = "none"
	KindTour         = "tour"
	KindZip          = "zip"
	KindNeighborhood = "neighborhood"
	KindAddress      = "address"
)

// OriginTour marks selections made by the guided tour. Any other originator
// is treated as a user interaction.
const OriginTour = "guided-tour"

// DefaultMessage is shown when nothing is highlighted.
const DefaultMessage = "Hover a ZIP bar or a business bubble to see which neighborhoods are linked."

// Context describes why a selection was made.
type Context struct {
	Kind         string `json:"kind"`
	Originator   string `json:"originator,omitempty"`
	Message      string `json:"message,omitempty"`
	SceneID      string `json:"scene_id,omitempty"`
	Zip          string `json:"zip,omitempty"`
	AddressLabel string `json:"address_label,omitempty"`
}

// Selection is an immutable snapshot of the active highlight set.
type Selection struct {
	Names   []string `json:"names"`
	Context Context  `json:"context"`
	Message string   `json:"message"`
	Seq     uint64   `json:"seq"`
}

// Has reports whether name is in the selection.
func (s Selection) Has(name string) bool {
	return slices.Contains(s.Names, name)
}

// View renders a selection. Render is called synchronously, in registration
// order, while the hub lock is held; it must not call back into the Hub.
type View interface {
	Render(sel Selection)
}

// ViewFunc adapts a function to View.
type ViewFunc func(sel Selection)

func (f ViewFunc) Render(sel Selection) { f(sel) }

// Hub is the single owner of the active highlight set.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	current Selection
	views   []View

	extMu    sync.Mutex
	external []func()
}

// NewHub creates a Hub with an empty selection.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		current: Selection{Names: []string{}, Context: Context{Kind: KindNone}, Message: DefaultMessage},
	}
}

// Attach registers a view and renders the current selection to it immediately.
func (h *Hub) Attach(v View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.views = append(h.views, v)
	v.Render(h.current)
}

// OnExternal registers fn to run before any user-originated selection is
// applied. The guided tour uses this to stop itself instead of racing the user.
func (h *Hub) OnExternal(fn func()) {
	h.extMu.Lock()
	defer h.extMu.Unlock()
	h.external = append(h.external, fn)
}

// SetActive atomically replaces the active set and renders every view before returning.
// Blank and duplicate names are dropped; order is preserved.
func (h *Hub) SetActive(names []string, ctx Context) Selection {
	if ctx.Kind == "" {
		ctx.Kind = KindNeighborhood
	}
	if ctx.Kind != KindNone && ctx.Originator != OriginTour {
		h.notifyExternal()
	}

	cleaned := dedupe(names)

	h.mu.Lock()
	defer h.mu.Unlock()

	sel := Selection{
		Names:   cleaned,
		Context: ctx,
		Seq:     h.current.Seq + 1,
	}
	sel.Message = describe(sel)
	h.current = sel

	for _, v := range h.views {
		v.Render(sel)
	}
	h.logger.Debug("highlight changed", "kind", ctx.Kind, "originator", ctx.Originator, "names", cleaned)
	return sel
}

// Clear empties the active set.
func (h *Hub) Clear() Selection {
	return h.SetActive(nil, Context{Kind: KindNone})
}

// Current returns the active selection.
func (h *Hub) Current() Selection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Message returns the caption for the current selection.
func (h *Hub) Message() string {
	return h.Current().Message
}

func (h *Hub) notifyExternal() {
	h.extMu.Lock()
	fns := slices.Clone(h.external)
	h.extMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// describe builds the caption for the highlight panel.
func describe(sel Selection) string {
	ctx := sel.Context
	names := sel.Names

	if len(names) == 0 {
		switch {
		case ctx.Kind == KindAddress && ctx.AddressLabel != "" && ctx.Zip != "":
			return fmt.Sprintf("%s highlighted within ZIP %s.", ctx.AddressLabel, ctx.Zip)
		case ctx.Kind == KindAddress && ctx.AddressLabel != "":
			return fmt.Sprintf("%s pinpointed on the map.", ctx.AddressLabel)
		case ctx.Kind == KindTour && ctx.Message != "":
			return ctx.Message
		default:
			return DefaultMessage
		}
	}

	list := FormatList(names)
	switch {
	case ctx.Kind == KindTour && ctx.Message != "":
		return ctx.Message
	case ctx.Kind == KindZip && ctx.Zip != "":
		return fmt.Sprintf("ZIP %s lights up %s on both maps.", ctx.Zip, list)
	case ctx.Kind == KindNeighborhood:
		return fmt.Sprintf("%s highlighted on both maps.", list)
	case ctx.Kind == KindAddress:
		label := ctx.AddressLabel
		if label == "" {
			label = "Selected address"
		}
		if ctx.Zip != "" {
			return fmt.Sprintf("%s highlights %s in ZIP %s.", label, list, ctx.Zip)
		}
		return fmt.Sprintf("%s highlights %s.", label, list)
	default:
		return fmt.Sprintf("%s highlighted across the maps.", list)
	}
}

// FormatList joins names in prose: "A", "A and B", "A, B, and C".
func FormatList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}
