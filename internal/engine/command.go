// Package engine owns the live terrain grid. A single goroutine drains a
// bounded command queue at each tick boundary, advances the simulation, and
// fans out snapshots to subscribers. Nothing outside this package mutates
// the grid.
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/gritlab/sandtable/internal/terrain"
)

// Command is the closed set of inbound mutations. Transports decode loose
// JSON payloads into one of the concrete command types below; the engine
// loop switches exhaustively over them.
type Command interface {
	commandType() string
}

// BrushCommand applies a radius-weighted height edit.
type BrushCommand struct {
	Brush terrain.Brush
}

// DepthFrameCommand blends a sensor depth frame into the height plane.
type DepthFrameCommand struct {
	Frame terrain.DepthFrame
}

// ResetCommand zeroes the grid. It takes effect at the next tick boundary,
// never mid-tick.
type ResetCommand struct{}

// SetPhysicsCommand enables or disables the simulation step. With physics
// off the grid only changes through direct interaction.
type SetPhysicsCommand struct {
	Enabled bool
}

// AddWaterCommand deposits water at a cell, used by the viewer's rain tool.
type AddWaterCommand struct {
	Row    int
	Col    int
	Amount float64
}

func (BrushCommand) commandType() string      { return CommandTypeBrush }
func (DepthFrameCommand) commandType() string { return CommandTypeDepthFrame }
func (ResetCommand) commandType() string      { return CommandTypeReset }
func (SetPhysicsCommand) commandType() string { return CommandTypeSetPhysics }
func (AddWaterCommand) commandType() string   { return CommandTypeAddWater }

// Wire names for the command envelope, shared by the REST, WebSocket, and
// UDP surfaces.
const (
	CommandTypeBrush      = "applyBrush"
	CommandTypeDepthFrame = "applyDepthFrame"
	CommandTypeReset      = "reset"
	CommandTypeSetPhysics = "setPhysicsEnabled"
	CommandTypeAddWater   = "addWater"
)

// envelope is the wire form of a command: a type tag plus type-specific
// fields, flattened the way the original frontend sent them.
type envelope struct {
	Type string `json:"type"`

	// applyBrush
	Row       *int     `json:"row,omitempty"`
	Col       *int     `json:"col,omitempty"`
	Radius    *int     `json:"radius,omitempty"`
	Magnitude *float64 `json:"magnitude,omitempty"`

	// applyDepthFrame
	Width   *int      `json:"width,omitempty"`
	Height  *int      `json:"height,omitempty"`
	Samples []float64 `json:"samples,omitempty"`

	// setPhysicsEnabled
	Enabled *bool `json:"enabled,omitempty"`

	// addWater
	Amount *float64 `json:"amount,omitempty"`
}

// DecodeCommand parses a JSON command envelope into its typed form. Unknown
// or structurally incomplete envelopes are rejected; range checks happen
// later against the live grid.
func DecodeCommand(data []byte) (Command, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("engine: invalid command payload: %w", err)
	}

	switch e.Type {
	case CommandTypeBrush:
		if e.Row == nil || e.Col == nil || e.Radius == nil || e.Magnitude == nil {
			return nil, fmt.Errorf("engine: %s requires row, col, radius, magnitude", e.Type)
		}
		return BrushCommand{Brush: terrain.Brush{
			Row:       *e.Row,
			Col:       *e.Col,
			Radius:    *e.Radius,
			Magnitude: *e.Magnitude,
		}}, nil

	case CommandTypeDepthFrame:
		if e.Width == nil || e.Height == nil || e.Samples == nil {
			return nil, fmt.Errorf("engine: %s requires width, height, samples", e.Type)
		}
		frame := terrain.DepthFrame{Width: *e.Width, Height: *e.Height, Samples: e.Samples}
		if err := frame.Validate(); err != nil {
			return nil, err
		}
		return DepthFrameCommand{Frame: frame}, nil

	case CommandTypeReset:
		return ResetCommand{}, nil

	case CommandTypeSetPhysics:
		if e.Enabled == nil {
			return nil, fmt.Errorf("engine: %s requires enabled", e.Type)
		}
		return SetPhysicsCommand{Enabled: *e.Enabled}, nil

	case CommandTypeAddWater:
		if e.Row == nil || e.Col == nil || e.Amount == nil {
			return nil, fmt.Errorf("engine: %s requires row, col, amount", e.Type)
		}
		return AddWaterCommand{Row: *e.Row, Col: *e.Col, Amount: *e.Amount}, nil

	case "":
		return nil, fmt.Errorf("engine: command envelope missing type")
	default:
		return nil, fmt.Errorf("engine: unknown command type %q", e.Type)
	}
}

// EncodeCommand serializes a command back to its wire envelope. The replay
// and fixture tools use it to produce traffic identical to live clients.
func EncodeCommand(cmd Command) ([]byte, error) {
	e := envelope{Type: cmd.commandType()}
	switch c := cmd.(type) {
	case BrushCommand:
		e.Row, e.Col = &c.Brush.Row, &c.Brush.Col
		e.Radius, e.Magnitude = &c.Brush.Radius, &c.Brush.Magnitude
	case DepthFrameCommand:
		e.Width, e.Height = &c.Frame.Width, &c.Frame.Height
		e.Samples = c.Frame.Samples
	case ResetCommand:
	case SetPhysicsCommand:
		e.Enabled = &c.Enabled
	case AddWaterCommand:
		e.Row, e.Col, e.Amount = &c.Row, &c.Col, &c.Amount
	default:
		return nil, fmt.Errorf("engine: cannot encode command %T", cmd)
	}
	return json.Marshal(e)
}
