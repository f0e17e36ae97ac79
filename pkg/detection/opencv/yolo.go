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
)

// ObjectConfig configures the YOLOv8 object model.
type ObjectConfig struct {
	ModelPath   string
	ScoreThresh float32
	NMSThresh   float32
	InputWidth  int
	InputHeight int
}

// DefaultObjectConfig returns production defaults for YOLOv8n.
func DefaultObjectConfig() ObjectConfig {
	return ObjectConfig{
		ModelPath:   "models/yolov8n.onnx",
		ScoreThresh: 0.25,
		NMSThresh:   0.45,
		InputWidth:  640,
		InputHeight: 640,
	}
}

// ObjectModel detects COCO objects with a YOLOv8 ONNX network.
type ObjectModel struct {
	mu  sync.Mutex
	net gocv.Net
	cfg ObjectConfig
}

// NewObjectModel loads the YOLO network.
func NewObjectModel(cfg ObjectConfig) (*ObjectModel, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", detection.ErrModelNotFound, cfg.ModelPath)
	}
	def := DefaultObjectConfig()
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		cfg.InputWidth, cfg.InputHeight = def.InputWidth, def.InputHeight
	}
	if cfg.NMSThresh <= 0 {
		cfg.NMSThresh = def.NMSThresh
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("opencv: failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &ObjectModel{net: net, cfg: cfg}, nil
}

// Detect implements detection.ObjectModel. Labels are COCO class names.
func (m *ObjectModel) Detect(ctx context.Context, frame capture.Frame) ([]detection.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := decode(frame)
	if err != nil {
		return nil, detection.WrapInference("yolo", err)
	}
	defer img.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(m.cfg.InputWidth, m.cfg.InputHeight),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	// [1, 4+classes, anchors]
	dims := out.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, detection.WrapInference("yolo", fmt.Errorf("unexpected output shape %v", dims))
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, detection.WrapInference("yolo", err)
	}

	cands := parseYOLO(data, dims[1], dims[2], m.cfg.ScoreThresh,
		float32(img.Cols())/float32(m.cfg.InputWidth),
		float32(img.Rows())/float32(m.cfg.InputHeight))
	if len(cands) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.rect
		scores[i] = c.score
	}
	keep := gocv.NMSBoxes(boxes, scores, m.cfg.ScoreThresh, m.cfg.NMSThresh)

	objs := make([]detection.Object, 0, len(keep))
	for _, i := range keep {
		c := cands[i]
		objs = append(objs, detection.Object{
			Label:      detection.ClassName(c.class),
			Confidence: float64(c.score),
			Box: detection.Box{
				X:      float64(c.rect.Min.X),
				Y:      float64(c.rect.Min.Y),
				Width:  float64(c.rect.Dx()),
				Height: float64(c.rect.Dy()),
			},
		})
	}
	return objs, nil
}

// Close releases the network.
func (m *ObjectModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.net.Close()
	return nil
}

type candidate struct {
	rect  image.Rectangle
	score float32
	class int
}

// parseYOLO reads a channel-major [rows, anchors] tensor, keeping the best
// class per anchor at or above thresh and scaling boxes by sx, sy.
func parseYOLO(data []float32, rows, anchors int, thresh, sx, sy float32) []candidate {
	var out []candidate
	for i := 0; i < anchors; i++ {
		best, class := float32(0), -1
		for c := 4; c < rows; c++ {
			if s := data[c*anchors+i]; s > best {
				best, class = s, c-4
			}
		}
		if class < 0 || best < thresh {
			continue
		}
		cx, cy := data[i], data[anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]
		out = append(out, candidate{
			rect: image.Rect(
				int((cx-w/2)*sx), int((cy-h/2)*sy),
				int((cx+w/2)*sx), int((cy+h/2)*sy),
			),
			score: best,
			class: class,
		})
	}
	return out
}
