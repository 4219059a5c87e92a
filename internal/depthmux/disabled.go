package depthmux

import (
	"context"
	"net/http"
	"sync"

	"github.com/gritlab/sandtable/internal/terrain"
)

// DisabledDepthMux is a no-op DepthMux implementation used when no sensor is
// attached. It lets the server, viewer, and admin routes run on pointer
// input alone. Subscribers are tracked so their channels close
// deterministically on Unsubscribe or Close, unblocking readers during
// shutdown.
type DisabledDepthMux struct {
	mu          sync.Mutex
	subscribers map[string]chan terrain.DepthFrame
	closing     bool
}

func NewDisabledDepthMux() *DisabledDepthMux {
	return &DisabledDepthMux{
		subscribers: make(map[string]chan terrain.DepthFrame),
	}
}

func (d *DisabledDepthMux) Subscribe() (string, chan terrain.DepthFrame) {
	id := randomID()
	ch := make(chan terrain.DepthFrame)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledDepthMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledDepthMux) SendCommand(string) error { return nil }

func (d *DisabledDepthMux) Initialize() error { return nil }

// Monitor blocks until the context is cancelled; there is nothing to read.
func (d *DisabledDepthMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledDepthMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledDepthMux) AttachAdminRoutes(*http.ServeMux) {}
