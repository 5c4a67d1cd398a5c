package tour

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/civic-data-tour/internal/domain"
)

// DefaultScenes returns the built-in San Francisco tour.
func DefaultScenes() []domain.Scene {
	return []domain.Scene{
		{
			ID:               "business-core",
			Targets:          []string{"Financial District/South Beach", "Mission"},
			Status:           "Business density piles up along the eastern spine.",
			Message:          "Financial District/South Beach and Mission alone host over 65,000 listings, nearly a third of all records.",
			Narration:        "Scene 1: The tour opens downtown where Financial District/South Beach and Mission together hold nearly one-third of all listings.",
			ScrollAnchor:     "#insight-business",
			FallbackDuration: 6500 * time.Millisecond,
		},
		{
			ID:               "resource-gap",
			Targets:          []string{"South of Market", "Sunset/Parkside"},
			Status:           "Layered resources show downtown saturation versus Sunset scarcity.",
			Message:          "SOMA stacks jobs next to mini parks while Sunset/Parkside trades jobs for green space.",
			Narration:        "Scene 2: SOMA glows with jobs yet only mini parks, while Sunset/Parkside flips the script with acreage but fewer services.",
			ScrollAnchor:     "#insight-colocation",
			FallbackDuration: 6500 * time.Millisecond,
		},
		{
			ID:               "housing-pressure",
			Targets:          []string{"Tenderloin", "Bayview Hunters Point"},
			Status:           "Housing cost burdens mirror the resource deserts.",
			Message:          "Tenderloin and Bayview Hunters Point lead on severe renter burdens while civic facilities lag.",
			Narration:        "Scene 3: Housing charts reveal Tenderloin and Bayview Hunters Point bearing the heaviest renter burdens where services lag.",
			ScrollAnchor:     "#insight-housing",
			FallbackDuration: 6500 * time.Millisecond,
		},
		{
			ID:               "rent-trend",
			Targets:          []string{"Mission", "Outer Richmond"},
			Status:           "Rents rebound citywide after the 2020 dip.",
			Message:          "Mission and Outer Richmond both climb back toward pre-pandemic rents, keeping pressure high.",
			Narration:        "Scene 4: The rent timeline shows Mission and Outer Richmond both climbing back toward pre-pandemic peaks.",
			ScrollAnchor:     "#insight-rent",
			FallbackDuration: 6500 * time.Millisecond,
		},
		{
			ID:               "explore",
			Targets:          []string{},
			Status:           "Now try the Open Exploration tools with your ZIP or address.",
			Message:          "Ready to explore? Scroll to Open Exploration and plug in your own location.",
			Narration:        "Final scene: Take the controls. Scroll to Open Exploration and plug in your ZIP or an address to keep investigating.",
			ScrollAnchor:     "#open-explore",
			FallbackDuration: 6000 * time.Millisecond,
		},
	}
}

// sceneFile is the on-disk YAML layout.
type sceneFile struct {
	Scenes []sceneRecord `yaml:"scenes"`
}

type sceneRecord struct {
	ID            string   `yaml:"id"`
	Neighborhoods []string `yaml:"neighborhoods"`
	Status        string   `yaml:"status"`
	Message       string   `yaml:"message"`
	Narration     string   `yaml:"narration"`
	ScrollTo      string   `yaml:"scroll_to"`
	DurationMs    int      `yaml:"duration_ms"`
}

// LoadScenes reads and validates a YAML scenes file.
func LoadScenes(path string) ([]domain.Scene, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read scenes: %w", err)
	}
	return ParseScenes(data)
}

// ParseScenes decodes and validates YAML scene definitions.
func ParseScenes(data []byte) ([]domain.Scene, error) {
	var f sceneFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenes: %w", err)
	}

	scenes := make([]domain.Scene, 0, len(f.Scenes))
	for _, r := range f.Scenes {
		targets := r.Neighborhoods
		if targets == nil {
			targets = []string{}
		}
		scenes = append(scenes, domain.Scene{
			ID:               strings.TrimSpace(r.ID),
			Targets:          targets,
			Status:           r.Status,
			Message:          r.Message,
			Narration:        r.Narration,
			ScrollAnchor:     r.ScrollTo,
			FallbackDuration: time.Duration(r.DurationMs) * time.Millisecond,
		})
	}
	if err := ValidateScenes(scenes); err != nil {
		return nil, err
	}
	return scenes, nil
}

// ValidateScenes checks that a scene list can drive a tour. All problems are
// reported together.
func ValidateScenes(scenes []domain.Scene) error {
	if len(scenes) == 0 {
		return errors.New("no scenes defined")
	}

	var errs []error
	seen := make(map[string]int, len(scenes))
	for i, s := range scenes {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("scene %d: missing id", i+1))
			continue
		}
		if prev, ok := seen[s.ID]; ok {
			errs = append(errs, fmt.Errorf("scene %d: duplicate id %q (first used by scene %d)", i+1, s.ID, prev+1))
		} else {
			seen[s.ID] = i
		}
		if s.NarrationLine() == "" {
			errs = append(errs, fmt.Errorf("scene %q: needs status, message or narration text", s.ID))
		}
		if s.FallbackDuration < 0 {
			errs = append(errs, fmt.Errorf("scene %q: negative duration", s.ID))
		} else if s.FallbackDuration > 0 && s.FallbackDuration < MinHold {
			errs = append(errs, fmt.Errorf("scene %q: duration %s is below the %s minimum", s.ID, s.FallbackDuration, MinHold))
		}
	}
	return errors.Join(errs...)
}
