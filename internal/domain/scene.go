package domain

import "time"

// Scene is one step of the guided tour. Scenes are fixed at configuration time.
type Scene struct {
	ID               string
	Targets          []string // neighborhoods to highlight, in order; may be empty
	Status           string   // status line shown next to the step counter
	Message          string   // caption for the highlight panel
	Narration        string   // line shown in the narration ticker and spoken
	ScrollAnchor     string   // optional page anchor, e.g. "#insight-rent"
	FallbackDuration time.Duration
}

// NarrationLine is the text spoken and displayed for the scene: the narration,
// else the caption, else the status line.
func (s Scene) NarrationLine() string {
	switch {
	case s.Narration != "":
		return s.Narration
	case s.Message != "":
		return s.Message
	default:
		return s.Status
	}
}
