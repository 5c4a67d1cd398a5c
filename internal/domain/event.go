package domain

import (
	"time"

	"github.com/google/uuid"
)

// Activity event types.
const (
	ActivityHighlight = "highlight"
	ActivityTour      = "tour"
)

// ActivityEvent records a user-visible state change for downstream analytics.
type ActivityEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Action     string    `json:"action"` // tour: started, scene, paused, ...; highlight: context kind
	SceneID    string    `json:"scene_id,omitempty"`
	SceneIndex int       `json:"scene_index"` // -1 when not tied to a scene
	Names      []string  `json:"names,omitempty"`
	Originator string    `json:"originator,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewActivityEvent stamps a new event with a random ID and the package clock.
func NewActivityEvent(eventType, action string) ActivityEvent {
	return ActivityEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Action:     action,
		SceneIndex: -1,
		OccurredAt: clock.Now().UTC(),
	}
}
