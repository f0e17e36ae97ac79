// Package gaze decides whether the primary face in a frame is attending
// to the screen, using normalized eye-to-face-center vectors and a
// relative nose-offset head pose.
package gaze

import (
	"math"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/geometry"
)

// Landmarks maps analysis roles to landmark indices of the upstream face model.
// These must match the model's numbering scheme exactly.
type Landmarks struct {
	LeftEye    []int `json:"left_eye"`
	RightEye   []int `json:"right_eye"`
	NoseTip    []int `json:"nose_tip"`
	FaceCenter []int `json:"face_center"`
}

// MediaPipeLandmarks returns index sets for the 468-point MediaPipe face mesh.
// The face center is the midpoint of the two cheek contour points on the eye line.
func MediaPipeLandmarks() Landmarks {
	return Landmarks{
		LeftEye:    []int{33, 133, 159, 145},
		RightEye:   []int{362, 263, 386, 374},
		NoseTip:    []int{1},
		FaceCenter: []int{234, 454},
	}
}

// YuNetLandmarks returns index sets for the layout produced by the
// opencv YuNet backend: 0 right eye, 1 left eye, 2 nose tip, 3-4 mouth
// corners, 5-6 face edges on the eye line.
func YuNetLandmarks() Landmarks {
	return Landmarks{
		LeftEye:    []int{1},
		RightEye:   []int{0},
		NoseTip:    []int{2},
		FaceCenter: []int{5, 6},
	}
}

// Thresholds are independent triggers; exceeding any one means looking away.
type Thresholds struct {
	GazeX float64 `json:"gaze_x"`
	GazeY float64 `json:"gaze_y"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// DefaultThresholds returns the tuned production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GazeX: 0.15,
		GazeY: 0.2,
		Yaw:   0.2,
		Pitch: 0.25,
	}
}

// Kind classifies a frame by face count.
type Kind int

const (
	NoFace Kind = iota
	SingleFace
	MultipleFaces
)

func (k Kind) String() string {
	switch k {
	case NoFace:
		return "no_face"
	case SingleFace:
		return "single_face"
	case MultipleFaces:
		return "multiple_faces"
	}
	return "unknown"
}

// Result is the analysis of one frame.
type Result struct {
	Faces int  `json:"faces"`
	Kind  Kind `json:"kind"`

	// Determined is false when there is no face or the primary face lacks
	// the landmarks needed for a decision. An undetermined frame is never
	// looking away.
	Determined  bool           `json:"determined"`
	LookingAway bool           `json:"looking_away"`
	Gaze        geometry.Point `json:"gaze"`
	Yaw         float64        `json:"yaw"`
	Pitch       float64        `json:"pitch"`
}

// NoFace reports whether the frame had zero faces.
func (r Result) NoFace() bool { return r.Kind == NoFace }

// MultipleFaces reports whether more than one face was present.
func (r Result) MultipleFaces() bool { return r.Kind == MultipleFaces }

// Analyzer is stateless; one instance can serve every frame.
type Analyzer struct {
	landmarks  Landmarks
	thresholds Thresholds
}

// NewAnalyzer creates an analyzer for the given landmark scheme.
func NewAnalyzer(landmarks Landmarks, thresholds Thresholds) *Analyzer {
	return &Analyzer{landmarks: landmarks, thresholds: thresholds}
}

// Analyze classifies the faces of one frame. Only faces[0] is analyzed
// for gaze, also when several faces are present.
func (a *Analyzer) Analyze(faces []detection.Face) Result {
	res := Result{Faces: len(faces)}
	switch {
	case len(faces) == 0:
		res.Kind = NoFace
		return res
	case len(faces) > 1:
		res.Kind = MultipleFaces
	default:
		res.Kind = SingleFace
	}

	pts := faces[0].Landmarks
	left, okL := geometry.Centroid(pts, a.landmarks.LeftEye)
	right, okR := geometry.Centroid(pts, a.landmarks.RightEye)
	nose, okN := geometry.Centroid(pts, a.landmarks.NoseTip)
	center, okC := geometry.Centroid(pts, a.landmarks.FaceCenter)
	if !okL || !okR || !okN || !okC {
		return res
	}

	res.Determined = true
	res.Gaze = geometry.Mean(
		geometry.Direction(left, center),
		geometry.Direction(right, center),
	)
	res.Yaw = math.Abs(nose.X-center.X) / math.Max(1, math.Abs(center.X))
	res.Pitch = math.Abs(nose.Y-center.Y) / math.Max(1, math.Abs(center.Y))

	t := a.thresholds
	res.LookingAway = math.Abs(res.Gaze.X) > t.GazeX ||
		math.Abs(res.Gaze.Y) > t.GazeY ||
		res.Yaw > t.Yaw ||
		res.Pitch > t.Pitch
	return res
}
