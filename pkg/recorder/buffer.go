package recorder

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Buffer accumulates chunks until it is sealed. It is safe for
// concurrent use.
type Buffer struct {
	mu       sync.Mutex
	mimeType string
	chunks   [][]byte
	size     int
	dropped  int
	artifact *Artifact
}

// NewBuffer creates an empty accumulator.
func NewBuffer(mimeType string) *Buffer {
	return &Buffer{mimeType: mimeType}
}

// Add appends c. Empty chunks are ignored and chunks arriving after Seal
// are dropped; Add reports whether c was kept.
func (b *Buffer) Add(c Chunk) bool {
	if len(c.Data) == 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.artifact != nil {
		b.dropped++
		return false
	}
	b.chunks = append(b.chunks, c.Data)
	b.size += len(c.Data)
	return true
}

// Size returns the number of bytes accumulated.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Chunks returns the number of chunks accumulated.
func (b *Buffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Dropped returns the number of chunks that arrived after Seal.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Seal assembles the artifact. Only the first call assembles; later calls
// return the same artifact.
func (b *Buffer) Seal(now time.Time) *Artifact {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.artifact != nil {
		return b.artifact
	}
	data := bytes.Join(b.chunks, nil)
	b.artifact = &Artifact{
		ID:        uuid.NewString(),
		MIMEType:  b.mimeType,
		CreatedAt: now,
		Size:      len(data),
		Chunks:    len(b.chunks),
		data:      data,
	}
	b.chunks = nil
	return b.artifact
}

// Artifact is a finished recording.
type Artifact struct {
	ID        string    `json:"id"`
	MIMEType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
	Chunks    int       `json:"chunks"`

	mu      sync.RWMutex
	data    []byte
	revoked bool
}

// Bytes returns the recording data.
func (a *Artifact) Bytes() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.revoked {
		return nil, ErrRevoked
	}
	return a.data, nil
}

// Revoke releases the data. Revoking twice is a no-op.
func (a *Artifact) Revoke() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = true
	a.data = nil
}

// Revoked reports whether Revoke was called.
func (a *Artifact) Revoked() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.revoked
}

// Filename is a download name for the artifact.
func (a *Artifact) Filename() string {
	ext := "bin"
	switch a.MIMEType {
	case MIMETypeMJPEG:
		ext = "mjpeg"
	case "video/webm":
		ext = "webm"
	case "video/mp4":
		ext = "mp4"
	}
	return fmt.Sprintf("session-%s-%s.%s", a.CreatedAt.UTC().Format("20060102_150405"), a.ID[:8], ext)
}
