package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/camguard/internal/journal"
)

// Event levels sent to SSE clients.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// StatusEvent represents a single status message for SSE.
type StatusEvent struct {
	Time    string           `json:"t"`
	Level   string           `json:"l,omitempty"`
	Msg     string           `json:"msg"`
	Outcome *journal.Outcome `json:"outcome,omitempty"`
}

// StatusBroadcaster fans status events out to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel of JSON events and a cleanup function.
// The caller must call the cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Subscribers returns the number of connected clients.
func (b *StatusBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a message to all subscribed clients.
// Slow clients miss messages once their buffer is full.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast(LevelInfo, msg)
}

// BroadcastOutcome publishes the result of a capture.
func (b *StatusBroadcaster) BroadcastOutcome(o journal.Outcome) {
	evt := StatusEvent{Level: LevelInfo, Outcome: &o}
	if o.OK {
		evt.Msg = "Photo " + o.PhotoID + " captured"
	} else {
		evt.Level = LevelError
		evt.Msg = fmt.Sprintf("Capture failed [%s]: %s", o.Kind, o.Message)
	}
	b.publish(evt)
}

func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter adapts StatusBroadcaster to io.Writer for debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
