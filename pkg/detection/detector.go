// Package detection defines the face-landmark and object-detection
// collaborators consumed by the monitoring engine.
package detection

import (
	"context"

	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/geometry"
)

// Box is a bounding rectangle in frame pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box.
func (b Box) Center() geometry.Point {
	return geometry.Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Area returns the area of the box.
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// Face is one detected face. Landmark indices are stable across frames
// per the model's landmark scheme; there is no identity across frames.
type Face struct {
	Landmarks  []geometry.Point `json:"landmarks"`
	Box        Box              `json:"box"`
	Confidence float64          `json:"confidence"`
}

// Object is one labeled detection from the object model.
type Object struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// FaceModel estimates faces and their landmarks in a frame.
type FaceModel interface {
	EstimateFaces(ctx context.Context, frame capture.Frame) ([]Face, error)
}

// ObjectModel detects labeled objects in a frame.
type ObjectModel interface {
	Detect(ctx context.Context, frame capture.Frame) ([]Object, error)
}

// FilterConfidence returns the objects at or above min.
func FilterConfidence(objs []Object, min float64) []Object {
	if min <= 0 {
		return objs
	}
	out := objs[:0:0]
	for _, o := range objs {
		if o.Confidence >= min {
			out = append(out, o)
		}
	}
	return out
}
