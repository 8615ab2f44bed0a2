package faces

import "math"

// DefaultThreshold is the dlib-calibrated same-person distance.
const DefaultThreshold = 0.6

// Matcher finds the closest gallery entry within Threshold.
type Matcher struct {
	Threshold float64
}

// Match is a successful FindMatch result.
type Match struct {
	PersonID string
	Distance float64
}

// FindMatch returns the gallery entry at minimum Euclidean distance from
// embedding. There is no match when the gallery is empty or the minimum
// distance is >= Threshold. Among equal minima the first entry in gallery
// order wins. Entries of a different dimensionality are skipped.
func (m Matcher) FindMatch(embedding []float32, g *Gallery) (Match, bool) {
	best := Match{Distance: math.Inf(1)}
	found := false
	for _, e := range g.Entries() {
		if len(e.Embedding) != len(embedding) {
			continue
		}
		d := Distance(embedding, e.Embedding)
		if d < best.Distance {
			best = Match{PersonID: e.PersonID, Distance: d}
			found = true
		}
	}
	if !found || best.Distance >= m.Threshold {
		return Match{}, false
	}
	return best, true
}

// Distance is the Euclidean distance between equal-length vectors.
func Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
