package depthmux

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipePort is a SensorPorter driven directly by the test through an io.Pipe.
type pipePort struct {
	io.Reader
	writes strings.Builder
	closer io.Closer
}

func (p *pipePort) Write(b []byte) (int, error) { return p.writes.Write(b) }
func (p *pipePort) Close() error                { return p.closer.Close() }

func newPipeMux(t *testing.T) (*DepthMux[*pipePort], *io.PipeWriter) {
	t.Helper()
	r, w := io.Pipe()
	port := &pipePort{Reader: r, closer: r}
	return New(port), w
}

func TestMonitorDeliversFramesToSubscribers(t *testing.T) {
	mux, w := newPipeMux(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	go func() {
		io.WriteString(w, "# warmup\n")
		io.WriteString(w, "DF,2,2,1,2,3,4\n")
	}()

	select {
	case frame := <-ch:
		assert.Equal(t, []float64{1, 2, 3, 4}, frame.Samples)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop")
	}
}

func TestMonitorCountsBadLines(t *testing.T) {
	mux, w := newPipeMux(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	go func() {
		io.WriteString(w, "DF,2,2,1,2,3\n") // sample count mismatch
		io.WriteString(w, "DF,1,1,7\n")
	}()

	select {
	case frame := <-ch:
		assert.Equal(t, []float64{7}, frame.Samples)
	case <-time.After(2 * time.Second):
		t.Fatal("good frame not delivered after bad line")
	}

	parsed, bad := mux.Stats()
	assert.EqualValues(t, 1, parsed)
	assert.EqualValues(t, 1, bad)
}

func TestUnsubscribeRemovesChannel(t *testing.T) {
	mux, _ := newPipeMux(t)
	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)
}

func TestSendCommandAppendsNewline(t *testing.T) {
	r, _ := io.Pipe()
	port := &pipePort{Reader: r, closer: r}
	mux := New(port)

	require.NoError(t, mux.SendCommand("R=30"))
	assert.Equal(t, "R=30\n", port.writes.String())
}

func TestMockDepthMuxReplaysFixture(t *testing.T) {
	fixture := []byte("# fixture\nDF,1,1,42\n")
	mux := NewMockDepthMux(fixture, 10*time.Millisecond)
	defer mux.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	select {
	case frame := <-ch:
		assert.Equal(t, []float64{42}, frame.Samples)
	case <-time.After(2 * time.Second):
		t.Fatal("mock mux produced no frames")
	}
}

func TestDisabledDepthMux(t *testing.T) {
	d := NewDisabledDepthMux()
	id, ch := d.Subscribe()

	require.NoError(t, d.SendCommand("anything"))
	require.NoError(t, d.Initialize())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Monitor(ctx) }()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	d.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)

	require.NoError(t, d.Close())
	_, closedCh := d.Subscribe()
	_, open = <-closedCh
	assert.False(t, open)
}
