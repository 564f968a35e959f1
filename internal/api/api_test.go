package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/assetsync/internal/controller"
	"github.com/rumor-ml/commons.systems/assetsync/internal/logging"
	"github.com/rumor-ml/commons.systems/assetsync/internal/permission"
	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
	"github.com/rumor-ml/commons.systems/assetsync/internal/source"
)

// mockController implements Controller for testing
type mockController struct {
	startResult  controller.StartResult
	startErr     error
	stopped      bool
	status       controller.Status
	perm         permission.Status
	files        []*record.Record
	filesErr     error
	resyncErr    error
	resyncCalls  int
	resyncConfig bool
	panicOnFiles bool
}

func (m *mockController) StartSync(ctx context.Context) (controller.StartResult, error) {
	return m.startResult, m.startErr
}

func (m *mockController) StopSync() bool { return m.stopped }

func (m *mockController) CheckSyncStatus() controller.Status { return m.status }

func (m *mockController) CheckPermissions(ctx context.Context) permission.Status {
	if m.perm == permission.Granted {
		return permission.Granted
	}
	return permission.Denied
}

func (m *mockController) RequestPermissions(ctx context.Context) permission.Status { return m.perm }

func (m *mockController) GetFiles(ctx context.Context) ([]*record.Record, error) {
	if m.panicOnFiles {
		panic("store exploded")
	}
	return m.files, m.filesErr
}

func (m *mockController) Resync(ctx context.Context, confirm bool) (controller.StartResult, error) {
	m.resyncCalls++
	m.resyncConfig = confirm
	if !confirm {
		return controller.StartResult{}, controller.ErrConfirmationRequired
	}
	if m.resyncErr != nil {
		return controller.StartResult{}, m.resyncErr
	}
	return controller.StartResult{Started: true, RunID: "resync-1"}, nil
}

func serve(t *testing.T, c Controller, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	NewRouter(c, logging.Null()).ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStartSync(t *testing.T) {
	tests := []struct {
		name     string
		mock     *mockController
		wantCode int
	}{
		{"started", &mockController{startResult: controller.StartResult{Started: true, RunID: "r1"}}, http.StatusAccepted},
		{"already running", &mockController{startResult: controller.StartResult{RunID: "r0"}}, http.StatusOK},
		{"permission denied", &mockController{startErr: &permission.Error{Status: permission.Denied}}, http.StatusForbidden},
		{"failure", &mockController{startErr: errors.New("boom")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, tt.mock, http.MethodPost, "/api/sync/start")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	rec := serve(t, &mockController{startResult: controller.StartResult{Started: true, RunID: "r1"}}, http.MethodPost, "/api/sync/start")
	assert.Equal(t, controller.StartResult{Started: true, RunID: "r1"}, decode[controller.StartResult](t, rec))
}

func TestStartSync_MethodNotAllowed(t *testing.T) {
	rec := serve(t, &mockController{}, http.MethodGet, "/api/sync/start")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStopAndStatus(t *testing.T) {
	m := &mockController{stopped: true, status: controller.Status{Syncing: true, RunID: "r9"}}

	rec := serve(t, m, http.MethodPost, "/api/sync/stop")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[StopResponse](t, rec).Stopping)

	rec = serve(t, m, http.MethodGet, "/api/sync/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	status := decode[controller.Status](t, rec)
	assert.True(t, status.Syncing)
	assert.Equal(t, "r9", status.RunID)
}

func TestPermissions(t *testing.T) {
	m := &mockController{perm: permission.Restricted}

	rec := serve(t, m, http.MethodGet, "/api/permissions")
	assert.Equal(t, permission.Denied, decode[PermissionResponse](t, rec).Status)

	rec = serve(t, m, http.MethodPost, "/api/permissions/request")
	assert.Equal(t, permission.Restricted, decode[PermissionResponse](t, rec).Status)
}

func TestFiles(t *testing.T) {
	rec := serve(t, &mockController{}, http.MethodGet, "/api/files")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"files":[],"count":0}`, rec.Body.String())

	file := record.New(source.Descriptor{ID: "a.jpg", Name: "a.jpg", ContentType: "image/jpeg", Width: 10, Height: 10})
	rec = serve(t, &mockController{files: []*record.Record{file}}, http.MethodGet, "/api/files")
	body := decode[FilesResponse](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "a.jpg", body.Files[0].AssetID)
	assert.Contains(t, rec.Body.String(), `"uploaded":false`)
	assert.NotContains(t, rec.Body.String(), `"hash"`)

	rec = serve(t, &mockController{filesErr: errors.New("disk gone")}, http.MethodGet, "/api/files")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk gone")
}

func TestResync(t *testing.T) {
	m := &mockController{}
	rec := serve(t, m, http.MethodPost, "/api/resync")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, m.resyncConfig)

	rec = serve(t, m, http.MethodPost, "/api/resync?confirm=true")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, m.resyncConfig)
	assert.Equal(t, "resync-1", decode[controller.StartResult](t, rec).RunID)

	m.resyncErr = controller.ErrSyncInProgress
	rec = serve(t, m, http.MethodPost, "/api/resync?confirm=1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 3, m.resyncCalls)
}

func TestHealth(t *testing.T) {
	rec := serve(t, &mockController{}, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "assetsync", body.Service)
}

func TestRecovery(t *testing.T) {
	rec := serve(t, &mockController{panicOnFiles: true}, http.MethodGet, "/api/files")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
