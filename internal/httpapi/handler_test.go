package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengeos/maplibre-gl-layer-control/internal/engine"
	"github.com/opengeos/maplibre-gl-layer-control/internal/state"
)

// fakeEngine records mutation calls and serves a canned snapshot.
type fakeEngine struct {
	snapshot   []state.Entry
	known      map[string]bool
	visCalls   []string
	opCalls    []string
	nameCalls  []string
	removed    []string
	reconciles int
}

func (f *fakeEngine) Snapshot() []state.Entry { return f.snapshot }

func (f *fakeEngine) SetVisibility(id string, visible bool) error {
	if !f.known[id] {
		return fmt.Errorf("%w: %q", engine.ErrUnknownLayer, id)
	}
	f.visCalls = append(f.visCalls, fmt.Sprintf("%s=%v", id, visible))
	return nil
}

func (f *fakeEngine) SetOpacity(id string, opacity float64) error {
	if !f.known[id] {
		return fmt.Errorf("%w: %q", engine.ErrUnknownLayer, id)
	}
	f.opCalls = append(f.opCalls, fmt.Sprintf("%s=%v", id, opacity))
	return nil
}

func (f *fakeEngine) SetName(id, name string) error {
	if !f.known[id] {
		return fmt.Errorf("%w: %q", engine.ErrUnknownLayer, id)
	}
	f.nameCalls = append(f.nameCalls, fmt.Sprintf("%s=%s", id, name))
	return nil
}

func (f *fakeEngine) RemoveCustomLayer(id string) { f.removed = append(f.removed, id) }
func (f *fakeEngine) Reconcile()                  { f.reconciles++ }

func newTestServer(t *testing.T, eng Engine) *httptest.Server {
	t.Helper()
	h := NewHandler(zerolog.Nop(), eng, nil)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, url, nil)
	} else {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestListLayers(t *testing.T) {
	eng := &fakeEngine{
		snapshot: []state.Entry{
			{ID: state.BackgroundID, Name: "Background", Visible: true, Indeterminate: true, Opacity: 0.9},
			{ID: "user-fill-1", Kind: state.KindNative, Name: "User Fill 1", Visible: true, Opacity: 1},
			{ID: "cog-1", Kind: state.KindCustom, Name: "Cog 1", Opacity: 0.5, CustomType: "cog"},
		},
	}
	srv := newTestServer(t, eng)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/layers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	layers, ok := body["layers"].([]any)
	require.True(t, ok, "body = %v", body)
	require.Len(t, layers, 3)

	first := layers[0].(map[string]any)
	assert.Equal(t, "Background", first["id"])
	assert.Equal(t, true, first["indeterminate"])

	third := layers[2].(map[string]any)
	assert.Equal(t, "custom", third["kind"])
	assert.Equal(t, "cog", third["custom_type"])
}

func TestSetVisibility(t *testing.T) {
	eng := &fakeEngine{known: map[string]bool{"user-fill-1": true}}
	srv := newTestServer(t, eng)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/v1/layers/user-fill-1/visibility", `{"visible": false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"user-fill-1=false"}, eng.visCalls)
}

func TestSetVisibilityUnknownLayer(t *testing.T) {
	eng := &fakeEngine{known: map[string]bool{}}
	srv := newTestServer(t, eng)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/v1/layers/ghost/visibility", `{"visible": true}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "not_found", errObj["code"])
}

func TestSetVisibilityBadBody(t *testing.T) {
	eng := &fakeEngine{known: map[string]bool{"user-fill-1": true}}
	srv := newTestServer(t, eng)

	for _, body := range []string{``, `{}`, `{"visible": "yes"}`, `{"visible": true, "extra": 1}`} {
		resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/v1/layers/user-fill-1/visibility", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
	}
	assert.Empty(t, eng.visCalls)
}

func TestSetOpacity(t *testing.T) {
	eng := &fakeEngine{known: map[string]bool{"user-fill-1": true}}
	srv := newTestServer(t, eng)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/v1/layers/user-fill-1/opacity", `{"opacity": 0.3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"user-fill-1=0.3"}, eng.opCalls)
}

func TestSetName(t *testing.T) {
	eng := &fakeEngine{known: map[string]bool{"cog-1": true}}
	srv := newTestServer(t, eng)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/v1/layers/cog-1/name", `{"name": "Elevation"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"cog-1=Elevation"}, eng.nameCalls)

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/layers/cog-1/name", `{"name": ""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRemoveCustomLayer(t *testing.T) {
	eng := &fakeEngine{}
	srv := newTestServer(t, eng)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/layers/cog-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"cog-1"}, eng.removed)
}

func TestReconcile(t *testing.T) {
	eng := &fakeEngine{}
	srv := newTestServer(t, eng)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/reconcile", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, eng.reconciles)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/readyz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}
