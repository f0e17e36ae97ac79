package detection

import (
	"context"
	"sync"

	"github.com/teslashibe/go-proctor/pkg/capture"
)

// MockFaceModel returns scripted faces. It is safe for concurrent use.
type MockFaceModel struct {
	mu    sync.Mutex
	faces []Face
	err   error
	calls int

	// Called, when set, receives each frame after the result is chosen.
	Called func(frame capture.Frame)
}

// NewMockFaceModel creates a face model that returns faces until changed.
func NewMockFaceModel(faces ...Face) *MockFaceModel {
	return &MockFaceModel{faces: faces}
}

// SetFaces changes the faces returned by subsequent calls.
func (m *MockFaceModel) SetFaces(faces ...Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
	m.err = nil
}

// SetError makes subsequent calls fail with err.
func (m *MockFaceModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times EstimateFaces ran.
func (m *MockFaceModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// EstimateFaces implements FaceModel.
func (m *MockFaceModel) EstimateFaces(ctx context.Context, frame capture.Frame) ([]Face, error) {
	m.mu.Lock()
	m.calls++
	faces, err, called := m.faces, m.err, m.Called
	m.mu.Unlock()

	if called != nil {
		called(frame)
	}
	if err != nil {
		return nil, &InferenceError{Model: "mock-face", Err: err}
	}
	return faces, nil
}

// MockObjectModel returns scripted objects. It is safe for concurrent use.
type MockObjectModel struct {
	mu      sync.Mutex
	objects []Object
	err     error
	calls   int
}

// NewMockObjectModel creates an object model that returns objects until changed.
func NewMockObjectModel(objects ...Object) *MockObjectModel {
	return &MockObjectModel{objects: objects}
}

// SetObjects changes the objects returned by subsequent calls.
func (m *MockObjectModel) SetObjects(objects ...Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = objects
	m.err = nil
}

// SetError makes subsequent calls fail with err.
func (m *MockObjectModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect ran.
func (m *MockObjectModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect implements ObjectModel.
func (m *MockObjectModel) Detect(ctx context.Context, frame capture.Frame) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, &InferenceError{Model: "mock-object", Err: m.err}
	}
	return m.objects, nil
}
