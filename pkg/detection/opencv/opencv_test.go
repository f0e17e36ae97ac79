package opencv

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
)

func findModel(name string) string {
	for _, p := range []string{
		filepath.Join("models", name),
		filepath.Join("..", "..", "..", "models", name),
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func grayFrame(t *testing.T, w, h int) capture.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return capture.Frame{Seq: 1, JPEG: buf.Bytes(), Width: w, Height: h}
}

func TestDefaultModelPathsMatchConfig(t *testing.T) {
	cfg := config.Default()
	if got := DefaultFaceConfig().ModelPath; got != cfg.FaceModel {
		t.Errorf("face model default = %q, config default = %q", got, cfg.FaceModel)
	}
	if got := DefaultObjectConfig().ModelPath; got != cfg.ObjectModel {
		t.Errorf("object model default = %q, config default = %q", got, cfg.ObjectModel)
	}
}

func TestNewFaceModel_MissingModel(t *testing.T) {
	_, err := NewFaceModel(FaceConfig{ModelPath: "/nonexistent/yunet.onnx"})
	if !errors.Is(err, detection.ErrModelNotFound) {
		t.Errorf("err = %v, want ErrModelNotFound", err)
	}
}

func TestNewObjectModel_MissingModel(t *testing.T) {
	_, err := NewObjectModel(ObjectConfig{ModelPath: "/nonexistent/yolo.onnx"})
	if !errors.Is(err, detection.ErrModelNotFound) {
		t.Errorf("err = %v, want ErrModelNotFound", err)
	}
}

func TestParseYuNetRow(t *testing.T) {
	row := []float64{
		100, 50, 80, 100, // box
		120, 80, // right eye
		160, 84, // left eye
		140, 100, // nose
		125, 120, 155, 120, // mouth
		0.93,
	}
	face := parseYuNetRow(func(c int) float64 { return row[c] })

	if len(face.Landmarks) != 7 {
		t.Fatalf("landmarks = %d, want 7", len(face.Landmarks))
	}
	if face.Confidence != 0.93 {
		t.Errorf("confidence = %v", face.Confidence)
	}
	left, right := face.Landmarks[5], face.Landmarks[6]
	if left.X != 100 || right.X != 180 || left.Y != 82 || right.Y != 82 {
		t.Errorf("edges = %+v %+v", left, right)
	}

	// A frontal face with the nose centered between the edges is not looking away.
	res := gaze.NewAnalyzer(gaze.YuNetLandmarks(), gaze.DefaultThresholds()).Analyze([]detection.Face{face})
	if res.Kind != gaze.SingleFace || !res.Determined {
		t.Fatalf("result = %+v, want a determined single face", res)
	}
	if res.LookingAway {
		t.Errorf("frontal face reported looking away: %+v", res)
	}
}

func TestParseYOLO(t *testing.T) {
	// Two anchors, two classes: anchor 0 is a confident class 1, anchor 1 is below threshold.
	const anchors = 2
	data := []float32{
		320, 100, // cx
		320, 100, // cy
		64, 10, // w
		32, 10, // h
		0.1, 0.2, // class 0
		0.9, 0.1, // class 1
	}
	got := parseYOLO(data, 6, anchors, 0.5, 0.5, 0.5)
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	c := got[0]
	if c.class != 1 || c.score != 0.9 {
		t.Errorf("candidate = %+v", c)
	}
	if c.rect != image.Rect(144, 152, 176, 168) {
		t.Errorf("rect = %v", c.rect)
	}
}

func TestFaceModel_BlankFrame(t *testing.T) {
	path := findModel("face_detection_yunet.onnx")
	if path == "" {
		t.Skip("YuNet model not found, skipping test")
	}
	m, err := NewFaceModel(FaceConfig{ModelPath: path})
	if err != nil {
		t.Fatalf("NewFaceModel: %v", err)
	}
	defer m.Close()

	faces, err := m.EstimateFaces(context.Background(), grayFrame(t, 320, 240))
	if err != nil {
		t.Fatalf("EstimateFaces: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("faces = %d on a blank frame", len(faces))
	}

	_, err = m.EstimateFaces(context.Background(), capture.Frame{})
	if !errors.Is(err, detection.ErrEmptyFrame) {
		t.Errorf("err = %v, want ErrEmptyFrame", err)
	}
}

func TestObjectModel_BlankFrame(t *testing.T) {
	path := findModel("yolov8n.onnx")
	if path == "" {
		t.Skip("YOLO model not found, skipping test")
	}
	m, err := NewObjectModel(ObjectConfig{ModelPath: path})
	if err != nil {
		t.Fatalf("NewObjectModel: %v", err)
	}
	defer m.Close()

	if _, err := m.Detect(context.Background(), grayFrame(t, 320, 240)); err != nil {
		t.Fatalf("Detect: %v", err)
	}
}
