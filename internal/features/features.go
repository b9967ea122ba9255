// Package features turns element geometry into the classifier input vector.
package features

import (
	"math"

	"adswap/internal/element"
)

// Size is the fixed length of a Vector.
const Size = 4

// Vector is ordered as width, height, top, left, each normalized by the
// matching viewport dimension.
type Vector [Size]float64

// Extract normalizes rect by vp. A viewport dimension that is zero (or not a
// positive finite number) yields 0 for the components divided by it.
func Extract(rect element.Rect, vp element.Viewport) Vector {
	return Vector{
		ratio(rect.Width, vp.Width),
		ratio(rect.Height, vp.Height),
		ratio(rect.Top, vp.Height),
		ratio(rect.Left, vp.Width),
	}
}

func ratio(v, dim float64) float64 {
	if dim <= 0 || math.IsNaN(dim) || math.IsInf(dim, 0) {
		return 0
	}
	r := v / dim
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Finite reports whether every component is a finite number.
func (v Vector) Finite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
