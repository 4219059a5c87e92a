// Package api exposes the sandbox over plain HTTP: snapshot reads, command
// submission, and runtime parameter tuning. The WebSocket stream lives in
// internal/stream; this surface is for scripts and the projector calibration
// tooling.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gritlab/sandtable/db"
	"github.com/gritlab/sandtable/internal/engine"
	"github.com/gritlab/sandtable/internal/httputil"
	"github.com/gritlab/sandtable/internal/monitoring"
	"github.com/gritlab/sandtable/internal/terrain"
)

// maxCommandBytes bounds a POSTed command body. Depth frames dominate; a
// 256x256 frame of JSON floats stays well under this.
const maxCommandBytes = 4 << 20

// ClientCounter reports connected streaming clients. The WebSocket hub
// implements it; a nil counter reads as zero clients.
type ClientCounter interface {
	ClientCount() int
}

type Server struct {
	engine    *engine.Engine
	db        *db.DB // nil when recording is disabled
	sessionID string
	clients   ClientCounter
	started   time.Time
}

func NewServer(e *engine.Engine, database *db.DB, sessionID string, clients ClientCounter) *Server {
	return &Server{
		engine:    e,
		db:        database,
		sessionID: sessionID,
		clients:   clients,
		started:   time.Now(),
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.getSnapshot)
	mux.HandleFunc("/classified", s.getClassified)
	mux.HandleFunc("/command", s.postCommand)
	mux.HandleFunc("/params", s.handleParams)
	mux.HandleFunc("/sessions", s.listSessions)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

// snapshotResponse inlines the snapshot planes and adds the height summary.
type snapshotResponse struct {
	*terrain.Snapshot
	Topography terrain.Topography `json:"topography"`
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.engine.Snapshot()
	httputil.WriteJSON(w, http.StatusOK, snapshotResponse{
		Snapshot:   snap,
		Topography: snap.Topography(),
	})
}

// classifiedResponse pairs the snapshot header with per-cell band names.
type classifiedResponse struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Tick   uint64   `json:"tick"`
	Bands  []string `json:"bands"`
}

func (s *Server) getClassified(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.engine.Snapshot()
	bands := snap.Classified()
	names := make([]string, len(bands))
	for i, b := range bands {
		names[i] = b.String()
	}
	httputil.WriteJSON(w, http.StatusOK, classifiedResponse{
		Width:  snap.Width,
		Height: snap.Height,
		Tick:   snap.Tick,
		Bands:  names,
	})
}

func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
	if err != nil {
		httputil.BadRequest(w, "failed to read request body")
		return
	}

	cmd, err := engine.DecodeCommand(body)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid command: %v", err))
		return
	}

	if err := s.engine.Submit(cmd); err != nil {
		if errors.Is(err, engine.ErrQueueFull) {
			httputil.ServiceUnavailable(w, "command queue full")
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to submit command: %v", err))
		return
	}

	if s.db != nil && s.sessionID != "" {
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			monitoring.Logf("api: failed to decode command type: %v", err)
		} else if err := s.db.RecordCommand(s.sessionID, envelope.Type, body); err != nil {
			monitoring.Logf("api: failed to record command: %v", err)
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

// paramsResponse is the wire form of the simulation parameters.
type paramsResponse struct {
	Retention    float64 `json:"retention"`
	FlowFraction float64 `json:"flow_fraction"`
	WaterEpsilon float64 `json:"water_epsilon"`
	BlendAlpha   float64 `json:"blend_alpha"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p := s.engine.Params()
		httputil.WriteJSON(w, http.StatusOK, paramsResponse{
			Retention:    p.Retention,
			FlowFraction: p.FlowFraction,
			WaterEpsilon: p.WaterEpsilon,
			BlendAlpha:   p.BlendAlpha,
		})

	case http.MethodPost:
		// partial updates: absent fields keep their current value
		current := s.engine.Params()
		update := paramsResponse{
			Retention:    current.Retention,
			FlowFraction: current.FlowFraction,
			WaterEpsilon: current.WaterEpsilon,
			BlendAlpha:   current.BlendAlpha,
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&update); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid params: %v", err))
			return
		}
		p := terrain.Params{
			Retention:    update.Retention,
			FlowFraction: update.FlowFraction,
			WaterEpsilon: update.WaterEpsilon,
			BlendAlpha:   update.BlendAlpha,
		}
		if err := s.engine.SetParams(p); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid params: %v", err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, update)

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "recording disabled")
		return
	}

	sessions, err := s.db.Sessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve sessions: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

type healthResponse struct {
	Status  string  `json:"status"`
	Tick    uint64  `json:"tick"`
	Clients int     `json:"clients"`
	Uptime  float64 `json:"uptime"` // seconds since the server was created
	Physics bool    `json:"physics"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.clients != nil {
		clients = s.clients.ClientCount()
	}
	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Tick:    s.engine.Tick(),
		Clients: clients,
		Uptime:  time.Since(s.started).Seconds(),
		Physics: s.engine.PhysicsEnabled(),
	})
}
