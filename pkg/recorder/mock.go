package recorder

import (
	"errors"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/pkg/capture"
)

// MockRecorder delivers scripted chunks. With NeverConfirm set, the
// channel returned by Stop never closes.
type MockRecorder struct {
	NeverConfirm bool
	StartErr     error

	mu      sync.Mutex
	pending [][]byte
	onData  func(Chunk)
	seq     int
	started bool
	flushes int
	stops   int
	done    chan struct{}
	once    sync.Once
}

// NewMockRecorder creates a recorder that holds chunks until flushed.
func NewMockRecorder(chunks ...[]byte) *MockRecorder {
	return &MockRecorder{pending: chunks, done: make(chan struct{})}
}

// MIMEType implements Recorder.
func (m *MockRecorder) MIMEType() string { return "video/webm" }

// Start implements Recorder.
func (m *MockRecorder) Start(stream capture.Stream, onData func(Chunk)) error {
	if stream == nil {
		return errors.New("recorder: nil stream")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.onData = onData
	return nil
}

// Push queues data for the next flush.
func (m *MockRecorder) Push(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, data)
}

// Emit delivers data immediately.
func (m *MockRecorder) Emit(data []byte) {
	m.mu.Lock()
	onData := m.onData
	c := Chunk{Seq: m.seq, Data: data, Frames: 1, At: time.Now()}
	m.seq++
	m.mu.Unlock()
	if onData != nil {
		onData(c)
	}
}

// RequestFlush implements Recorder. Pending chunks are delivered
// synchronously.
func (m *MockRecorder) RequestFlush() {
	m.mu.Lock()
	m.flushes++
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, data := range pending {
		m.Emit(data)
	}
}

// Stop implements Recorder.
func (m *MockRecorder) Stop() <-chan struct{} {
	m.mu.Lock()
	m.stops++
	never := m.NeverConfirm
	m.mu.Unlock()
	if !never {
		m.once.Do(func() { close(m.done) })
	}
	return m.done
}

// Started reports whether Start succeeded.
func (m *MockRecorder) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Flushes returns the number of RequestFlush calls.
func (m *MockRecorder) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Stops returns the number of Stop calls.
func (m *MockRecorder) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// MockFactory hands out MockRecorders and remembers them.
type MockFactory struct {
	// NeverConfirm and Chunks configure each new recorder.
	NeverConfirm bool
	Chunks       [][]byte

	mu      sync.Mutex
	created []*MockRecorder
}

// New implements Factory.
func (f *MockFactory) New() Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := NewMockRecorder(append([][]byte(nil), f.Chunks...)...)
	m.NeverConfirm = f.NeverConfirm
	f.created = append(f.created, m)
	return m
}

// Created returns every recorder handed out so far.
func (f *MockFactory) Created() []*MockRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockRecorder(nil), f.created...)
}

// Last returns the most recent recorder, or nil.
func (f *MockFactory) Last() *MockRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}
