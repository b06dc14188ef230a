package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/aeropid/internal/config"
	"github.com/san-kum/aeropid/internal/hub"
	"github.com/san-kum/aeropid/internal/system"
)

func newTestServer(t *testing.T) (*Server, *system.System) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RateLimit.Enabled = false
	cfg.StaticDir = t.TempDir()

	core := system.New(system.Options{
		Reference: cfg.Reference,
		Kp:        cfg.PID.Kp,
		Ki:        cfg.PID.Ki,
		Kd:        cfg.PID.Kd,
		MaxPoints: cfg.MaxPoints,
		Seed:      13,
	})
	h := hub.New(core, time.Minute)
	t.Cleanup(h.Shutdown)
	return New(cfg, core, h), core
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/api/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var st system.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, config.DefaultReference, st.ReferenceAngle)
	assert.False(t, st.IsRunning)
}

func TestCommandEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/command",
		map[string]any{"command": "startSystem"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp commandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	// precondition failure maps to 409
	rec = doJSON(t, router, http.MethodPost, "/api/command",
		map[string]any{"command": "startSystem"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// bad argument maps to 400
	rec = doJSON(t, router, http.MethodPost, "/api/command",
		map[string]any{"command": "setTargetAngle", "value": 999})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown command maps to 400
	rec = doJSON(t, router, http.MethodPost, "/api/command",
		map[string]any{"command": "levitate"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	s, core := newTestServer(t)
	core.Execute(system.CmdStart, nil)
	now := time.Now()
	for i := 1; i <= 10; i++ {
		core.Tick(now.Add(time.Duration(i)*100*time.Millisecond), 0.1)
	}

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/history?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Angles []float64 `json:"angles"`
		Errors []float64 `json:"errors"`
		Times  []int64   `json:"times"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Angles, 3)
	assert.Len(t, body.Errors, 3)
	assert.Len(t, body.Times, 3)
}

func TestPIDEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPut, "/api/pid", map[string]any{"kp": 7.5})
	require.Equal(t, http.StatusOK, rec.Code)

	var pid system.PIDState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pid))
	assert.Equal(t, 7.5, pid.Kp)
	assert.Zero(t, pid.Integral)

	rec = doJSON(t, router, http.MethodPut, "/api/pid", map[string]any{"kp": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2], "burst of 2 exhausted")

	// a different IP has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
