// internal/app/features/console/routes.go
package console

import (
	"github.com/dalemusser/renewhub/internal/app/features/configapi"
	"github.com/dalemusser/renewhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for the console API, including the opaque
// settings documents the consoles persist. Every endpoint requires an
// operator session or the API token.
func Routes(h *Handler, cfg *configapi.Handler, am *auth.Manager) chi.Router {
	r := chi.NewRouter()

	r.Use(am.RequireOperator)

	r.Get("/data", h.ServeData)
	r.Get("/codes", h.ServeCodes)

	r.Post("/generate", h.ServeGenerate)
	r.Post("/extend", h.ServeExtend)
	r.Post("/create", h.ServeCreate)
	r.Post("/redeem", h.ServeRedeem)

	r.Post("/remind", h.ServeRemind)
	r.Post("/remind_multi", h.ServeRemindMulti)
	r.Post("/leave", h.ServeLeave)
	r.Post("/leave_multi", h.ServeLeaveMulti)

	r.Post("/job/run", h.ServeRunJob)

	r.Get("/config", cfg.ServeGetConfig)
	r.Put("/config", cfg.ServePutConfig)
	r.Get("/permissions", cfg.ServeGetPermissions)
	r.Put("/permissions", cfg.ServePutPermissions)

	return r
}
