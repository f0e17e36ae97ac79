package gaze

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/geometry"
)

// yunetFace builds a face in the YuNet layout with the face center at (300, 200).
func yunetFace(rightEye, leftEye, nose geometry.Point) detection.Face {
	return detection.Face{
		Landmarks: []geometry.Point{
			rightEye,
			leftEye,
			nose,
			{X: 280, Y: 270},
			{X: 320, Y: 270},
			{X: 240, Y: 200},
			{X: 360, Y: 200},
		},
		Confidence: 0.9,
	}
}

func frontalFace() detection.Face {
	return yunetFace(geometry.Point{X: 270, Y: 200}, geometry.Point{X: 330, Y: 200}, geometry.Point{X: 300, Y: 240})
}

func TestAnalyze(t *testing.T) {
	a := NewAnalyzer(YuNetLandmarks(), DefaultThresholds())

	tests := []struct {
		name  string
		faces []detection.Face
		want  Result
	}{
		{
			name:  "no faces",
			faces: nil,
			want:  Result{Faces: 0, Kind: NoFace},
		},
		{
			name:  "frontal face attending",
			faces: []detection.Face{frontalFace()},
			want:  Result{Faces: 1, Kind: SingleFace, Determined: true, Yaw: 0, Pitch: 0.2},
		},
		{
			name:  "head turned past yaw threshold",
			faces: []detection.Face{yunetFace(geometry.Point{X: 270, Y: 200}, geometry.Point{X: 330, Y: 200}, geometry.Point{X: 370, Y: 240})},
			want: Result{
				Faces: 1, Kind: SingleFace, Determined: true, LookingAway: true,
				Yaw: 70.0 / 300, Pitch: 0.2,
			},
		},
		{
			name:  "head tilted past pitch threshold",
			faces: []detection.Face{yunetFace(geometry.Point{X: 270, Y: 200}, geometry.Point{X: 330, Y: 200}, geometry.Point{X: 300, Y: 260})},
			want: Result{
				Faces: 1, Kind: SingleFace, Determined: true, LookingAway: true,
				Pitch: 0.3,
			},
		},
		{
			name:  "eyes both left of center trip gaze x",
			faces: []detection.Face{yunetFace(geometry.Point{X: 250, Y: 200}, geometry.Point{X: 290, Y: 200}, geometry.Point{X: 300, Y: 240})},
			want: Result{
				Faces: 1, Kind: SingleFace, Determined: true, LookingAway: true,
				Gaze: geometry.Point{X: 1, Y: 0}, Pitch: 0.2,
			},
		},
		{
			name: "multiple faces still analyzes the primary",
			faces: []detection.Face{
				frontalFace(),
				yunetFace(geometry.Point{X: 0, Y: 0}, geometry.Point{X: 10, Y: 0}, geometry.Point{X: 90, Y: 90}),
			},
			want: Result{Faces: 2, Kind: MultipleFaces, Determined: true, Pitch: 0.2},
		},
		{
			name:  "insufficient landmarks cannot determine",
			faces: []detection.Face{{Landmarks: []geometry.Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}}},
			want:  Result{Faces: 1, Kind: SingleFace},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := a.Analyze(tc.faces)
			if diff := cmp.Diff(tc.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("Analyze mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnalyze_GazeYThreshold(t *testing.T) {
	a := NewAnalyzer(YuNetLandmarks(), DefaultThresholds())

	// Eyes 20px above the face center line: each eye vector has y ~0.55.
	res := a.Analyze([]detection.Face{yunetFace(
		geometry.Point{X: 270, Y: 180},
		geometry.Point{X: 330, Y: 180},
		geometry.Point{X: 300, Y: 240},
	)})
	if !res.LookingAway {
		t.Fatalf("expected looking away, got %+v", res)
	}
	if res.Gaze.Y <= 0.2 {
		t.Errorf("Gaze.Y = %.3f, want > 0.2", res.Gaze.Y)
	}
	if res.Yaw != 0 {
		t.Errorf("Yaw = %.3f, want 0", res.Yaw)
	}
}

func TestAnalyze_NearOriginDenominatorGuard(t *testing.T) {
	a := NewAnalyzer(YuNetLandmarks(), DefaultThresholds())

	// Normalized coordinates: the denominator clamps to 1, so yaw is the raw offset.
	face := detection.Face{Landmarks: []geometry.Point{
		{X: 0.45, Y: 0.4}, {X: 0.55, Y: 0.4}, {X: 0.52, Y: 0.45},
		{X: 0.47, Y: 0.55}, {X: 0.53, Y: 0.55},
		{X: 0.4, Y: 0.4}, {X: 0.6, Y: 0.4},
	}}
	res := a.Analyze([]detection.Face{face})
	if !res.Determined {
		t.Fatal("expected a determined result")
	}
	if diff := res.Yaw - 0.02; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("Yaw = %.4f, want 0.02", res.Yaw)
	}
	if res.LookingAway {
		t.Errorf("expected attending face, got %+v", res)
	}
}

func TestMediaPipeLandmarks_InRange(t *testing.T) {
	lm := MediaPipeLandmarks()
	for _, set := range [][]int{lm.LeftEye, lm.RightEye, lm.NoseTip, lm.FaceCenter} {
		if len(set) == 0 {
			t.Fatal("empty landmark set")
		}
		for _, idx := range set {
			if idx < 0 || idx >= 468 {
				t.Errorf("index %d outside the 468-point mesh", idx)
			}
		}
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{NoFace: "no_face", SingleFace: "single_face", MultipleFaces: "multiple_faces"} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
