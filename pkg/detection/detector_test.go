package detection

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-proctor/pkg/capture"
)

func TestBox_Center(t *testing.T) {
	tests := []struct {
		name             string
		box              Box
		expectX, expectY float64
	}{
		{name: "origin box", box: Box{X: 0, Y: 0, Width: 20, Height: 10}, expectX: 10, expectY: 5},
		{name: "offset box", box: Box{X: 100, Y: 50, Width: 40, Height: 40}, expectX: 120, expectY: 70},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.box.Center()
			if c.X != tc.expectX || c.Y != tc.expectY {
				t.Errorf("Center: got (%.1f, %.1f), want (%.1f, %.1f)", c.X, c.Y, tc.expectX, tc.expectY)
			}
		})
	}
}

func TestBox_Area(t *testing.T) {
	if area := (Box{Width: 4, Height: 2.5}).Area(); area != 10 {
		t.Errorf("Area: got %.2f, want 10", area)
	}
}

func TestFilterConfidence(t *testing.T) {
	objs := []Object{
		{Label: "cell phone", Confidence: 0.9},
		{Label: "book", Confidence: 0.3},
		{Label: "laptop", Confidence: 0.35},
	}

	got := FilterConfidence(objs, 0.35)
	if len(got) != 2 || got[0].Label != "cell phone" || got[1].Label != "laptop" {
		t.Errorf("FilterConfidence: got %+v", got)
	}
	if len(objs) != 3 || objs[1].Label != "book" {
		t.Error("FilterConfidence must not modify its input")
	}
	if all := FilterConfidence(objs, 0); len(all) != 3 {
		t.Errorf("FilterConfidence(0): got %d objects, want 3", len(all))
	}
}

func TestClassName(t *testing.T) {
	tests := map[int]string{0: "person", 67: "cell phone", 73: "book", 63: "laptop", -1: "unknown", 80: "unknown"}
	for id, want := range tests {
		if got := ClassName(id); got != want {
			t.Errorf("ClassName(%d) = %q, want %q", id, got, want)
		}
	}
}

func TestWrapInference(t *testing.T) {
	if WrapInference("yunet", nil) != nil {
		t.Error("WrapInference(nil) should be nil")
	}

	base := errors.New("boom")
	err := WrapInference("yunet", base)
	var ie *InferenceError
	if !errors.As(err, &ie) || ie.Model != "yunet" {
		t.Fatalf("expected InferenceError for yunet, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if again := WrapInference("yolo", err); again != err {
		t.Error("WrapInference should not double-wrap")
	}
}

func TestMockModels(t *testing.T) {
	ctx := context.Background()
	faces := NewMockFaceModel(Face{Confidence: 0.8})

	got, err := faces.EstimateFaces(ctx, capture.Frame{})
	if err != nil || len(got) != 1 {
		t.Fatalf("EstimateFaces: got %v, %v", got, err)
	}

	faces.SetError(errors.New("model crashed"))
	if _, err := faces.EstimateFaces(ctx, capture.Frame{}); err == nil {
		t.Error("expected scripted error")
	}
	if faces.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", faces.Calls())
	}

	objects := NewMockObjectModel(Object{Label: "book"})
	if objs, err := objects.Detect(ctx, capture.Frame{}); err != nil || len(objs) != 1 {
		t.Fatalf("Detect: got %v, %v", objs, err)
	}
}
