// Package api serves the sync control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rumor-ml/commons.systems/assetsync/internal/controller"
	"github.com/rumor-ml/commons.systems/assetsync/internal/permission"
	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
)

// Controller is the control surface the handlers delegate to
type Controller interface {
	StartSync(ctx context.Context) (controller.StartResult, error)
	StopSync() bool
	CheckSyncStatus() controller.Status
	CheckPermissions(ctx context.Context) permission.Status
	RequestPermissions(ctx context.Context) permission.Status
	GetFiles(ctx context.Context) ([]*record.Record, error)
	Resync(ctx context.Context, confirm bool) (controller.StartResult, error)
}

// Handlers handles control requests
type Handlers struct {
	controller Controller
	logger     *slog.Logger
}

// NewHandlers creates the control handlers
func NewHandlers(c Controller, logger *slog.Logger) *Handlers {
	return &Handlers{controller: c, logger: logger}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// StopResponse is the body of POST /api/sync/stop
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// PermissionResponse is the body of the permission endpoints
type PermissionResponse struct {
	Status permission.Status `json:"status"`
}

// FilesResponse is the body of GET /api/files
type FilesResponse struct {
	Files []*record.Record `json:"files"`
	Count int              `json:"count"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// StartSync handles POST /api/sync/start
func (h *Handlers) StartSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.controller.StartSync(r.Context())
	if err != nil {
		if errors.Is(err, permission.ErrNotGranted) {
			h.writeError(w, http.StatusForbidden, err)
			return
		}
		h.logger.Error("StartSync failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	code := http.StatusAccepted
	if !result.Started {
		code = http.StatusOK
	}
	h.writeJSON(w, code, result)
}

// StopSync handles POST /api/sync/stop
func (h *Handlers) StopSync(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StopResponse{Stopping: h.controller.StopSync()})
}

// Status handles GET /api/sync/status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.controller.CheckSyncStatus())
}

// CheckPermissions handles GET /api/permissions
func (h *Handlers) CheckPermissions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, PermissionResponse{Status: h.controller.CheckPermissions(r.Context())})
}

// RequestPermissions handles POST /api/permissions/request
func (h *Handlers) RequestPermissions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, PermissionResponse{Status: h.controller.RequestPermissions(r.Context())})
}

// Files handles GET /api/files
func (h *Handlers) Files(w http.ResponseWriter, r *http.Request) {
	files, err := h.controller.GetFiles(r.Context())
	if err != nil {
		h.logger.Error("GetFiles failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, errors.New("failed to read sync records"))
		return
	}
	if files == nil {
		files = []*record.Record{}
	}
	h.writeJSON(w, http.StatusOK, FilesResponse{Files: files, Count: len(files)})
}

// Resync handles POST /api/resync?confirm=true
func (h *Handlers) Resync(w http.ResponseWriter, r *http.Request) {
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	result, err := h.controller.Resync(r.Context(), confirm)
	switch {
	case errors.Is(err, controller.ErrConfirmationRequired):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, controller.ErrSyncInProgress):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, permission.ErrNotGranted):
		h.writeError(w, http.StatusForbidden, err)
	case err != nil:
		h.logger.Error("Resync failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, err)
	default:
		h.writeJSON(w, http.StatusAccepted, result)
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   "assetsync",
		Timestamp: time.Now().UTC(),
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, code int, err error) {
	h.writeJSON(w, code, ErrorResponse{Error: err.Error()})
}
