package monitor

import (
	"sync"

	"github.com/agrovision/weedscan/internal/logger"
)

// FrameBroadcaster fans encoded JPEG frames out to multiple stream
// clients. Slow clients drop frames rather than back-pressuring the
// pipeline.
type FrameBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	stopped bool
}

func NewFrameBroadcaster() *FrameBroadcaster {
	return &FrameBroadcaster{clients: make(map[int]chan []byte)}
}

// Subscribe adds a new client and returns a channel for receiving frames.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := fb.nextID
	fb.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	fb.clients[id] = ch

	logger.Debug("Monitor", "Client #%d subscribed (total clients: %d)", id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		logger.Debug("Monitor", "Client #%d unsubscribed (remaining clients: %d)", id, len(fb.clients))
	}
}

// HasClients reports whether any stream client is connected, so callers
// can skip JPEG encoding when nobody is watching.
func (fb *FrameBroadcaster) HasClients() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.clients) > 0
}

// Publish delivers one encoded frame to every client, dropping the frame
// for clients whose buffers are full.
func (fb *FrameBroadcaster) Publish(jpegData []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.stopped {
		return
	}
	for _, ch := range fb.clients {
		select {
		case ch <- jpegData:
		default:
		}
	}
}

// Stop closes all client channels.
func (fb *FrameBroadcaster) Stop() {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.stopped {
		return
	}
	fb.stopped = true
	for id, ch := range fb.clients {
		close(ch)
		delete(fb.clients, id)
	}
}
