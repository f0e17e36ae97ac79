// Package geometry provides the 2D helpers used by face analysis.
package geometry

import "gonum.org/v1/gonum/spatial/r2"

// Point is a 2D landmark coordinate in model space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec returns p as a gonum vector.
func (p Point) Vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// FromVec converts a gonum vector back to a Point.
func FromVec(v r2.Vec) Point {
	return Point{X: v.X, Y: v.Y}
}

// Centroid averages the points referenced by indices.
// Indices outside points are skipped, since a low-confidence detection
// may carry a partial landmark set. ok is false when nothing was referenced.
func Centroid(points []Point, indices []int) (Point, bool) {
	var sum r2.Vec
	n := 0
	for _, idx := range indices {
		if idx < 0 || idx >= len(points) {
			continue
		}
		sum = r2.Add(sum, points[idx].Vec())
		n++
	}
	if n == 0 {
		return Point{}, false
	}
	return FromVec(r2.Scale(1/float64(n), sum)), true
}

// Direction returns the unit vector pointing from -> to.
// Coincident points yield the zero vector.
func Direction(from, to Point) Point {
	d := r2.Sub(to.Vec(), from.Vec())
	if r2.Norm(d) == 0 {
		return Point{}
	}
	return FromVec(r2.Unit(d))
}

// Mean averages vectors componentwise. An empty input yields the zero vector.
func Mean(vs ...Point) Point {
	if len(vs) == 0 {
		return Point{}
	}
	var sum r2.Vec
	for _, v := range vs {
		sum = r2.Add(sum, v.Vec())
	}
	return FromVec(r2.Scale(1/float64(len(vs)), sum))
}
