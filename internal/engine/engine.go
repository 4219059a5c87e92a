package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gritlab/sandtable/internal/monitoring"
	"github.com/gritlab/sandtable/internal/terrain"
)

// ErrQueueFull is returned by Submit when the command queue is saturated.
// Callers surface it as backpressure rather than blocking the transport.
var ErrQueueFull = errors.New("engine: command queue full")

const (
	// DefaultTickRate matches the 30 FPS target of the projected display.
	DefaultTickRate = 30

	defaultQueueDepth = 256
)

// Config wires up an Engine.
type Config struct {
	GridWidth  int
	GridHeight int
	TickRate   int // ticks per second; DefaultTickRate if zero
	QueueDepth int // command queue capacity; defaulted if zero
	Params     terrain.Params
}

// Engine owns the terrain grid. Run drives the fixed-rate tick loop; all
// other methods are safe to call from any goroutine and communicate with the
// loop through the command queue or atomically published snapshots.
type Engine struct {
	grid     *terrain.Grid
	sim      *terrain.Simulator
	tickRate int

	commands chan Command

	subscribers map[string]chan *terrain.Snapshot
	subMu       sync.Mutex

	tick     atomic.Uint64
	latest   atomic.Pointer[terrain.Snapshot]
	physics  atomic.Bool
	started  atomic.Bool
	paramsMu sync.Mutex
}

// New constructs an Engine with an all-zero grid.
func New(cfg Config) (*Engine, error) {
	grid, err := terrain.NewGrid(cfg.GridWidth, cfg.GridHeight)
	if err != nil {
		return nil, err
	}
	sim, err := terrain.NewSimulator(grid, cfg.Params)
	if err != nil {
		return nil, err
	}

	tickRate := cfg.TickRate
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	queueDepth := cfg.QueueDepth
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}

	e := &Engine{
		grid:        grid,
		sim:         sim,
		tickRate:    tickRate,
		commands:    make(chan Command, queueDepth),
		subscribers: make(map[string]chan *terrain.Snapshot),
	}
	e.physics.Store(true)
	e.latest.Store(grid.Snapshot())
	return e, nil
}

// TickRate returns the configured ticks per second.
func (e *Engine) TickRate() int { return e.tickRate }

// Tick returns the number of completed ticks.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// PhysicsEnabled reports whether the simulation step currently runs.
func (e *Engine) PhysicsEnabled() bool { return e.physics.Load() }

// Params returns the current simulation tuning.
func (e *Engine) Params() terrain.Params {
	e.paramsMu.Lock()
	defer e.paramsMu.Unlock()
	return e.sim.Params()
}

// SetParams swaps the simulation tuning for subsequent ticks.
func (e *Engine) SetParams(p terrain.Params) error {
	e.paramsMu.Lock()
	defer e.paramsMu.Unlock()
	return e.sim.SetParams(p)
}

// Submit queues a command for the next tick boundary without blocking.
func (e *Engine) Submit(cmd Command) error {
	select {
	case e.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Snapshot returns the most recently published grid snapshot. It never
// touches the live grid, so it is safe (and cheap) under any load.
func (e *Engine) Snapshot() *terrain.Snapshot {
	return e.latest.Load()
}

// Subscribe registers a snapshot channel fed once per tick. Slow consumers
// miss ticks instead of stalling the loop. The returned ID is used to
// unsubscribe.
func (e *Engine) Subscribe() (string, chan *terrain.Snapshot) {
	id := uuid.NewString()
	ch := make(chan *terrain.Snapshot, 1)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (e *Engine) Unsubscribe(id string) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if ch, ok := e.subscribers[id]; ok {
		close(ch)
		delete(e.subscribers, id)
	}
}

// Run drives the tick loop until the context is cancelled. It must be called
// exactly once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("engine: Run called twice")
	}

	interval := time.Second / time.Duration(e.tickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	monitoring.Logf("engine: %dx%d grid at %d ticks/s",
		e.grid.Width, e.grid.Height, e.tickRate)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.RunTick()
		}
	}
}

// RunTick executes one tick boundary: drain queued commands in arrival
// order, advance the simulation if physics is on, then publish a snapshot.
// Exported so tests and the replay tool can drive the loop without timers;
// it must only ever run from one goroutine.
func (e *Engine) RunTick() {
	e.drainCommands()

	if e.physics.Load() {
		e.paramsMu.Lock()
		e.sim.Step()
		e.paramsMu.Unlock()
	}

	tick := e.tick.Add(1)
	snap := e.grid.Snapshot()
	snap.Tick = tick
	e.latest.Store(snap)
	e.publish(snap)
}

func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.commands:
			e.apply(cmd)
		default:
			return
		}
	}
}

// apply executes one command against the live grid. Validation failures are
// logged and leave the grid unchanged; they are expected from remote input.
func (e *Engine) apply(cmd Command) {
	switch c := cmd.(type) {
	case BrushCommand:
		if err := e.grid.ApplyBrush(c.Brush); err != nil {
			monitoring.Logf("engine: rejected brush: %v", err)
		}
	case DepthFrameCommand:
		if err := e.grid.BlendDepthFrame(c.Frame, e.Params().BlendAlpha); err != nil {
			monitoring.Logf("engine: rejected depth frame: %v", err)
		}
	case ResetCommand:
		e.grid.Reset()
	case SetPhysicsCommand:
		e.physics.Store(c.Enabled)
		monitoring.Logf("engine: physics enabled=%v", c.Enabled)
	case AddWaterCommand:
		if err := e.grid.AddWater(c.Row, c.Col, c.Amount); err != nil {
			monitoring.Logf("engine: rejected water deposit: %v", err)
		}
	default:
		monitoring.Logf("engine: dropping unhandled command %T", cmd)
	}
}

func (e *Engine) publish(snap *terrain.Snapshot) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
			// subscriber still holds the previous tick; skip this one
		}
	}
}
