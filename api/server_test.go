package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gritlab/sandtable/db"
	"github.com/gritlab/sandtable/internal/engine"
	"github.com/gritlab/sandtable/internal/terrain"
)

func newTestServer(t *testing.T, queueDepth int) (*engine.Engine, *httptest.Server) {
	t.Helper()
	e, err := engine.New(engine.Config{
		GridWidth:  6,
		GridHeight: 4,
		QueueDepth: queueDepth,
		Params:     terrain.DefaultParams(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(e, nil, "", nil).ServeMux())
	t.Cleanup(srv.Close)
	return e, srv
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestGetSnapshot(t *testing.T) {
	_, srv := newTestServer(t, 8)

	var snap snapshotResponse
	resp := getJSON(t, srv.URL+"/snapshot", &snap)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 6, snap.Width)
	assert.Equal(t, 4, snap.Height)
	assert.Len(t, snap.Heights, 24)
	assert.Len(t, snap.Water, 24)
	// flat starting terrain
	assert.Equal(t, terrain.Topography{}, snap.Topography)
}

func TestSnapshotTopographyTracksTerrain(t *testing.T) {
	e, srv := newTestServer(t, 8)

	require.NoError(t, e.Submit(engine.SetPhysicsCommand{Enabled: false}))
	require.NoError(t, e.Submit(engine.BrushCommand{Brush: terrain.Brush{
		Row: 1, Col: 1, Radius: 1, Magnitude: 48,
	}}))
	e.RunTick()

	var snap snapshotResponse
	resp := getJSON(t, srv.URL+"/snapshot", &snap)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.0, snap.Topography.MinHeight)
	assert.Equal(t, 48.0, snap.Topography.MaxHeight)
	assert.InDelta(t, 2.0, snap.Topography.MeanHeight, 1e-9)
}

func TestGetClassified(t *testing.T) {
	_, srv := newTestServer(t, 8)

	var body classifiedResponse
	resp := getJSON(t, srv.URL+"/classified", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Bands, 24)
	// a fresh flat grid is all low ground
	for _, b := range body.Bands {
		assert.Equal(t, "sand", b)
	}
}

func TestPostCommandAcceptedAndApplied(t *testing.T) {
	e, srv := newTestServer(t, 8)

	payload := `{"type":"applyBrush","row":2,"col":3,"radius":2,"magnitude":20}`
	resp, err := http.Post(srv.URL+"/command", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	e.RunTick()
	h, _, err := e.Snapshot().At(2, 3)
	require.NoError(t, err)
	assert.Greater(t, h, 0.0)
}

func TestPostCommandMalformed(t *testing.T) {
	_, srv := newTestServer(t, 8)

	for _, payload := range []string{
		`not json`,
		`{"type":"launchVehicle"}`,
		`{"type":"applyBrush","row":2}`,
	} {
		resp, err := http.Post(srv.URL+"/command", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "payload %s", payload)
	}
}

func TestPostCommandQueueFull(t *testing.T) {
	_, srv := newTestServer(t, 1)

	payload := `{"type":"reset"}`
	resp, err := http.Post(srv.URL+"/command", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/command", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestParamsRoundTrip(t *testing.T) {
	e, srv := newTestServer(t, 8)

	var before paramsResponse
	resp := getJSON(t, srv.URL+"/params", &before)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.9, before.Retention)

	// partial update: only retention changes
	post, err := http.Post(srv.URL+"/params", "application/json", strings.NewReader(`{"retention":0.8}`))
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusOK, post.StatusCode)

	p := e.Params()
	assert.Equal(t, 0.8, p.Retention)
	assert.Equal(t, 0.1, p.FlowFraction)
	assert.Equal(t, 0.2, p.BlendAlpha)
}

func TestParamsRejectsInvalid(t *testing.T) {
	e, srv := newTestServer(t, 8)

	resp, err := http.Post(srv.URL+"/params", "application/json", strings.NewReader(`{"retention":1.5}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// unchanged
	assert.Equal(t, 0.9, e.Params().Retention)
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t, 8)

	var body healthResponse
	resp := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Physics)
	// no hub attached in this setup
	assert.Equal(t, 0, body.Clients)
	assert.GreaterOrEqual(t, body.Uptime, 0.0)
}

type stubClientCounter int

func (c stubClientCounter) ClientCount() int { return int(c) }

func TestHealthzReportsClients(t *testing.T) {
	e, err := engine.New(engine.Config{
		GridWidth:  6,
		GridHeight: 4,
		Params:     terrain.DefaultParams(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(e, nil, "", stubClientCounter(3)).ServeMux())
	t.Cleanup(srv.Close)

	var body healthResponse
	resp := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, body.Clients)
	assert.GreaterOrEqual(t, body.Uptime, 0.0)
}

func TestSessionsWithoutRecording(t *testing.T) {
	_, srv := newTestServer(t, 8)

	resp, err := http.Get(srv.URL + "/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionsWithRecording(t *testing.T) {
	e, err := engine.New(engine.Config{
		GridWidth:  6,
		GridHeight: 4,
		Params:     terrain.DefaultParams(),
	})
	require.NoError(t, err)

	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	sess, err := database.BeginSession(6, 4, 30)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(e, database, sess.ID, nil).ServeMux())
	t.Cleanup(srv.Close)

	var sessions []db.Session
	resp := getJSON(t, srv.URL+"/sessions", &sessions)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)

	// accepted commands land in the session's command log
	payload := `{"type":"addWater","row":1,"col":1,"amount":3}`
	post, err := http.Post(srv.URL+"/command", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusAccepted, post.StatusCode)

	cmds, err := database.Commands(sess.ID)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "addWater", cmds[0].Type)
	assert.Equal(t, payload, cmds[0].Payload)
}
