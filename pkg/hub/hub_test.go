package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn { return &fakeConn{closed: make(chan struct{})} }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	if len(data) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = string(w)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BacklogThenLive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("events", nil)
	go h.Run(ctx)

	conn := newFakeConn()
	c := NewClient(h, conn)
	backlog := func() []Message {
		// An event published after registration but before the
		// snapshot appears in both; the client must send it once.
		dup := Message{Type: JSONMessage, Data: []byte("b"), Key: "b"}
		h.Broadcast(dup)
		return []Message{
			{Type: JSONMessage, Data: []byte("a"), Key: "a"},
			dup,
		}
	}
	go c.Run(backlog)

	waitFor(t, func() bool { return h.ClientCount() == 1 && len(conn.messages()) >= 2 })
	h.Broadcast(Message{Type: JSONMessage, Data: []byte("c"), Key: "c"})
	waitFor(t, func() bool { return len(conn.messages()) >= 3 })

	time.Sleep(20 * time.Millisecond)
	got := conn.messages()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i], want[i])
		}
	}

	conn.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_StopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("events", nil)
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()

	conn := newFakeConn()
	go NewClient(h, conn).Run(nil)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	<-done
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("client connection not closed")
	}

	// Registration after stop fails fast.
	if h.Register(NewClient(h, newFakeConn())) {
		t.Error("Register succeeded on a stopped hub")
	}
}

func TestEncode(t *testing.T) {
	msg, err := Encode("event", "k1", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var env struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if env.Type != "event" || env.Data["n"] != 1 || msg.Key != "k1" {
		t.Errorf("unexpected envelope %+v key %q", env, msg.Key)
	}
}
