package correspond

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Assignment pairs a back card with its nearest front card. OK is false
// when there were no fronts to choose from.
type Assignment struct {
	Back     int
	Front    int
	Distance float64
	OK       bool
}

// Match assigns every back card the index of the front card whose centroid
// is closest in Euclidean distance. Ties go to the earlier front.
// Assignments are returned in back order.
func Match(backs, fronts []Card) []Assignment {
	out := make([]Assignment, len(backs))
	for i, b := range backs {
		best := Assignment{Back: i, Front: -1, Distance: math.Inf(1)}
		bv := b.Centroid.Vec()
		for j, f := range fronts {
			d := r2.Norm(r2.Sub(bv, f.Centroid.Vec()))
			if d < best.Distance {
				best.Front, best.Distance, best.OK = j, d, true
			}
		}
		out[i] = best
	}
	return out
}
