package udpingest

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gritlab/sandtable/internal/engine"
)

// captureSubmitter records submitted commands for assertions.
type captureSubmitter struct {
	mu   sync.Mutex
	cmds []engine.Command
	err  error
}

func (c *captureSubmitter) Submit(cmd engine.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.cmds = append(c.cmds, cmd)
	return nil
}

func (c *captureSubmitter) commands() []engine.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]engine.Command, len(c.cmds))
	copy(out, c.cmds)
	return out
}

func startListener(t *testing.T, sub Submitter) (*Listener, net.Addr, context.CancelFunc) {
	t.Helper()
	l := NewListener(Config{Address: "127.0.0.1:0"}, sub)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Listen(ctx) }()

	// wait for the socket to bind
	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = l.LocalAddr()
		return addr != nil
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("listener did not stop")
		}
	})
	return l, addr, cancel
}

func sendDatagram(t *testing.T, addr net.Addr, payload string) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
}

func TestListenerForwardsValidFrames(t *testing.T) {
	sub := &captureSubmitter{}
	l, addr, _ := startListener(t, sub)

	sendDatagram(t, addr, `{"width":2,"height":1,"samples":[10,20]}`)

	require.Eventually(t, func() bool {
		return len(sub.commands()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cmd, ok := sub.commands()[0].(engine.DepthFrameCommand)
	require.True(t, ok, "got %T", sub.commands()[0])
	assert.Equal(t, []float64{10, 20}, cmd.Frame.Samples)
	assert.EqualValues(t, 1, l.Stats().Snapshot().Frames)
}

func TestListenerDropsMalformedDatagrams(t *testing.T) {
	sub := &captureSubmitter{}
	l, addr, _ := startListener(t, sub)

	sendDatagram(t, addr, `not json at all`)
	sendDatagram(t, addr, `{"width":3,"height":3,"samples":[1]}`)

	require.Eventually(t, func() bool {
		return l.Stats().Snapshot().Dropped == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, sub.commands())
	assert.EqualValues(t, 2, l.Stats().Snapshot().Packets)
}

func TestListenerCountsEngineBackpressure(t *testing.T) {
	sub := &captureSubmitter{err: engine.ErrQueueFull}
	l, addr, _ := startListener(t, sub)

	sendDatagram(t, addr, `{"width":1,"height":1,"samples":[5]}`)

	require.Eventually(t, func() bool {
		return l.Stats().Snapshot().Rejected == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, l.Stats().Snapshot().Frames)
}

func TestListenerStopsOnCancel(t *testing.T) {
	sub := &captureSubmitter{}
	_, _, cancel := startListener(t, sub)
	cancel()
	// cleanup asserts the loop exits
}
