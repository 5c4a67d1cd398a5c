package domain

import (
	"regexp"
	"strings"
)

// zipInQueryRe matches a standalone five-digit run, e.g. "1 Dr Carlton B Goodlett Pl 94102".
var zipInQueryRe = regexp.MustCompile(`\b\d{5}\b`)

// Address match scores. See the package documentation for the ranking rules.
const (
	scoreExact    = 200
	scorePrefix   = 140
	scoreContains = 100
	scoreZipBonus = 25
)

// NormalizeZip strips non-digits from input and returns the five-digit ZIP.
// ok is false when the remaining digits are not exactly five.
func NormalizeZip(input string) (string, bool) {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) != 5 {
		return "", false
	}
	return digits, true
}

// ExtractZip returns the first standalone five-digit group in a free-text query.
func ExtractZip(query string) string {
	return zipInQueryRe.FindString(query)
}

// ScoreAddressPoint ranks how well a point matches an already lower-cased, trimmed query.
func ScoreAddressPoint(p AddressPoint, query string) int {
	label := strings.ToLower(p.Label)
	address := strings.ToLower(p.Address)

	score := 0
	switch {
	case label == query || address == query:
		score = scoreExact
	case strings.HasPrefix(label, query) || strings.HasPrefix(address, query):
		score = scorePrefix
	case strings.Contains(label, query) || strings.Contains(address, query):
		score = scoreContains
	}
	if p.Zip != "" && strings.Contains(query, p.Zip) {
		score += scoreZipBonus
	}
	return score
}

// FindAddressPoint returns the best-scoring point for query. ok is false when
// no point scores above zero.
func FindAddressPoint(points []AddressPoint, query string) (AddressPoint, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(points) == 0 {
		return AddressPoint{}, false
	}

	best := -1
	bestScore := 0
	for i := range points {
		if s := ScoreAddressPoint(points[i], q); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return AddressPoint{}, false
	}
	return points[best], true
}
