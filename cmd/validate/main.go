// Command validate checks that a scenes file and a dataset directory can drive
// the guided tour together: scene definitions are well formed, every dataset
// file loads with plausible chart data, and every neighborhood the tour or a ZIP lookup highlights has a
// centroid to place it on the map.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -data-dir data/processed \
//	  -scenes config/scenes.yaml
//
// Without -scenes the built-in San Francisco tour is checked.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/civic-data-tour/internal/dataset"
	"github.com/couchcryptid/civic-data-tour/internal/domain"
	"github.com/couchcryptid/civic-data-tour/internal/tour"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

// addErr records err, splitting joined errors into one line each.
func (p *phase) addErr(err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			p.addErr(e)
		}
		return
	}
	p.errors = append(p.errors, err.Error())
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", "", "directory containing the processed dataset JSON files")
	scenesFile := flag.String("scenes", "", "optional YAML scenes file (defaults to the built-in tour)")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(os.Stdout, *dataDir, *scenesFile); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, dataDir, scenesFile string) int {
	fmt.Fprintln(out, "=== Civic Tour Data Validation ===")
	fmt.Fprintln(out)

	scenes, scenePhase := validateScenes(scenesFile)
	snap, dataPhase := validateDataset(dataDir)

	phases := []*phase{scenePhase, dataPhase}
	if scenes != nil && snap != nil {
		phases = append(phases, validateCrossReferences(scenes, snap))
	}

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	if snap != nil {
		fmt.Fprintf(out, "Records: %d scenes, %d ZIPs, %d centroids, %d parks, %d facilities, %d schools, %d address points\n",
			len(scenes), len(snap.ZipList), len(snap.Centroids), len(snap.Parks), len(snap.Facilities), len(snap.Schools), len(snap.AddressPoints))
	}

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: scene definitions ──

func validateScenes(path string) ([]domain.Scene, *phase) {
	p := &phase{name: "Phase 1: Scene definitions"}

	scenes := tour.DefaultScenes()
	if path != "" {
		var err error
		scenes, err = tour.LoadScenes(path)
		if err != nil {
			p.addErr(err)
			return nil, p
		}
	} else if err := tour.ValidateScenes(scenes); err != nil {
		p.addErr(err)
		return nil, p
	}

	for _, s := range scenes {
		if s.ScrollAnchor != "" && !strings.HasPrefix(s.ScrollAnchor, "#") {
			p.errorf("scene %q: scroll anchor %q must start with #", s.ID, s.ScrollAnchor)
		}
	}
	return scenes, p
}

// ── Phase 2: dataset integrity ──

func validateDataset(dir string) (*dataset.Snapshot, *phase) {
	p := &phase{name: "Phase 2: Dataset integrity"}

	snap, err := dataset.Load(dir)
	if err != nil {
		p.addErr(err)
		return nil, p
	}

	var share float64
	for _, zip := range snap.ZipList {
		entry := snap.Zips[zip]
		share += entry.ShareOfCity
		if entry.BusinessCount < 0 {
			p.errorf("ZIP %s: negative business count %d", zip, entry.BusinessCount)
		}
		if len(entry.Neighborhoods()) == 0 {
			p.errorf("ZIP %s: no top neighborhoods to highlight", zip)
		}
	}
	if share > 1.0001 {
		p.errorf("ZIP shares of city sum to %.4f, expected at most 1", share)
	}

	for i, a := range snap.AddressPoints {
		if a.DisplayName() == "" {
			p.errorf("address point %d: no label or address", i+1)
		}
		if !a.Coordinates.Valid() {
			p.errorf("address point %q: missing coordinates", a.DisplayName())
		}
	}
	for _, share := range []struct {
		name string
		s    *domain.TenureShares
	}{{"moderate", snap.Housing.ModerateShare}, {"severe", snap.Housing.SevereShare}} {
		if share.s == nil {
			p.errorf("housing burden: no %s burden shares", share.name)
			continue
		}
		for _, group := range []string{domain.TenureOwner, domain.TenureRenter, domain.TenureTotal} {
			if v := share.s.Of(group); v < 0 || v > 1 {
				p.errorf("housing burden: %s %s share %.4f outside 0..1", group, share.name, v)
			}
		}
	}
	if len(snap.Rent) == 0 {
		p.errorf("rent trend: no usable monthly observations")
	}
	for zip, c := range snap.SchoolCounts {
		if c.Public+c.Private > c.Total {
			p.errorf("school counts for %s: public %d + private %d exceed total %d", zip, c.Public, c.Private, c.Total)
		}
	}
	return snap, p
}

// ── Phase 3: cross references ──

func validateCrossReferences(scenes []domain.Scene, snap *dataset.Snapshot) *phase {
	p := &phase{name: "Phase 3: Highlight targets have centroids"}

	for _, s := range scenes {
		for _, name := range s.Targets {
			if !snap.HasCentroid(name) {
				p.errorf("scene %q: target %q has no neighborhood centroid", s.ID, name)
			}
		}
	}
	for _, zip := range snap.ZipList {
		entry := snap.Zips[zip]
		if _, ok := snap.ZipCentroid(entry); !ok {
			p.errorf("ZIP %s: no centroid and none of its neighborhoods have one", zip)
		}
	}
	return p
}
