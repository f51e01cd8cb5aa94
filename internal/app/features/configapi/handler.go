// internal/app/features/configapi/handler.go

// Package configapi persists the consoles' opaque settings trees. The
// documents are stored and returned as-is; only the member_renewal_* keys
// inside the config tree mean anything to this service, and the settings
// store re-reads those on every use, so a PUT here takes effect without a
// restart.
package configapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/renewhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// SettingsStore reads and writes the two opaque settings documents.
type SettingsStore interface {
	GetConfig(ctx context.Context) (map[string]any, error)
	PutConfig(ctx context.Context, data map[string]any) error
	GetPermissions(ctx context.Context) (map[string]any, error)
	PutPermissions(ctx context.Context, data map[string]any) error
}

// Handler handles the config and permissions documents.
type Handler struct {
	Settings SettingsStore
	Log      *zap.Logger
}

// NewHandler creates a configapi handler.
func NewHandler(settings SettingsStore, logger *zap.Logger) *Handler {
	return &Handler{Settings: settings, Log: logger}
}

// ServeGetConfig handles GET /config.
func (h *Handler) ServeGetConfig(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, "config", h.Settings.GetConfig)
}

// ServePutConfig handles PUT /config.
func (h *Handler) ServePutConfig(w http.ResponseWriter, r *http.Request) {
	h.put(w, r, "config", h.Settings.PutConfig)
}

// ServeGetPermissions handles GET /permissions.
func (h *Handler) ServeGetPermissions(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, "permissions", h.Settings.GetPermissions)
}

// ServePutPermissions handles PUT /permissions.
func (h *Handler) ServePutPermissions(w http.ResponseWriter, r *http.Request) {
	h.put(w, r, "permissions", h.Settings.PutPermissions)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, name string, fetch func(context.Context) (map[string]any, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	data, err := fetch(ctx)
	if err != nil {
		h.Log.Error("loading "+name+" failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request, name string, store func(context.Context, map[string]any) error) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := store(ctx, data); err != nil {
		h.Log.Error("saving "+name+" failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
