// Package opencv provides gocv-backed face and object models: YuNet for
// faces with landmarks and YOLOv8 for objects.
package opencv

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/geometry"
)

// YuNet output columns: 0-3 box, 4-13 five landmark pairs, 14 score.
const (
	yunetColumns   = 15
	yunetLandmarks = 5
	yunetScoreCol  = 14
)

// FaceConfig configures the YuNet face model.
type FaceConfig struct {
	ModelPath   string
	ScoreThresh float64 // Minimum face score (default 0.6)
	NMSThresh   float64
	TopK        int
}

// DefaultFaceConfig returns production defaults for YuNet.
func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		ModelPath:   "models/face_detection_yunet.onnx",
		ScoreThresh: 0.6,
		NMSThresh:   0.3,
		TopK:        5000,
	}
}

// FaceModel estimates faces with OpenCV's FaceDetectorYN.
//
// Landmarks follow gaze.YuNetLandmarks: the five model points (right
// eye, left eye, nose tip, mouth corners) plus the two box edges on the
// eye line, so the face center is the box center at eye height.
type FaceModel struct {
	mu       sync.Mutex
	detector gocv.FaceDetectorYN
}

// NewFaceModel loads the YuNet model.
func NewFaceModel(cfg FaceConfig) (*FaceModel, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", detection.ErrModelNotFound, cfg.ModelPath)
	}
	def := DefaultFaceConfig()
	if cfg.ScoreThresh <= 0 {
		cfg.ScoreThresh = def.ScoreThresh
	}
	if cfg.NMSThresh <= 0 {
		cfg.NMSThresh = def.NMSThresh
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}

	// Input size is updated per frame.
	d := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(320, 320),
		float32(cfg.ScoreThresh),
		float32(cfg.NMSThresh),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &FaceModel{detector: d}, nil
}

// EstimateFaces implements detection.FaceModel.
func (m *FaceModel) EstimateFaces(ctx context.Context, frame capture.Frame) ([]detection.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := decode(frame)
	if err != nil {
		return nil, detection.WrapInference("yunet", err)
	}
	defer img.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	out := gocv.NewMat()
	defer out.Close()
	m.detector.Detect(img, &out)

	if out.Rows() > 0 && out.Cols() < yunetColumns {
		return nil, detection.WrapInference("yunet", fmt.Errorf("unexpected output width %d", out.Cols()))
	}
	faces := make([]detection.Face, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		faces = append(faces, parseYuNetRow(func(c int) float64 {
			return float64(out.GetFloatAt(r, c))
		}))
	}
	return faces, nil
}

// Close releases the detector.
func (m *FaceModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detector.Close()
	return nil
}

// parseYuNetRow converts one output row, read through at, to a Face.
func parseYuNetRow(at func(col int) float64) detection.Face {
	box := detection.Box{X: at(0), Y: at(1), Width: at(2), Height: at(3)}
	pts := make([]geometry.Point, 0, yunetLandmarks+2)
	for i := 0; i < yunetLandmarks; i++ {
		pts = append(pts, geometry.Point{X: at(4 + 2*i), Y: at(5 + 2*i)})
	}
	eyeY := (pts[0].Y + pts[1].Y) / 2
	pts = append(pts,
		geometry.Point{X: box.X, Y: eyeY},
		geometry.Point{X: box.X + box.Width, Y: eyeY},
	)
	return detection.Face{
		Landmarks:  pts,
		Box:        box,
		Confidence: at(yunetScoreCol),
	}
}

func decode(frame capture.Frame) (gocv.Mat, error) {
	if len(frame.JPEG) == 0 {
		return gocv.Mat{}, detection.ErrEmptyFrame
	}
	img, err := gocv.IMDecode(frame.JPEG, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, detection.ErrEmptyFrame
	}
	return img, nil
}
