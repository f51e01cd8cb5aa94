// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	configapifeature "github.com/dalemusser/renewhub/internal/app/features/configapi"
	consolefeature "github.com/dalemusser/renewhub/internal/app/features/console"
	healthfeature "github.com/dalemusser/renewhub/internal/app/features/health"
	loginfeature "github.com/dalemusser/renewhub/internal/app/features/login"
	codestore "github.com/dalemusser/renewhub/internal/app/store/codes"
	membershipstore "github.com/dalemusser/renewhub/internal/app/store/memberships"
	settingsstore "github.com/dalemusser/renewhub/internal/app/store/settings"
	"github.com/dalemusser/renewhub/internal/app/system/auth"
	"github.com/dalemusser/renewhub/internal/app/system/bot"
	"github.com/dalemusser/renewhub/internal/app/system/metrics"
	"github.com/dalemusser/renewhub/internal/app/system/renewal"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so the bot client and sweeper built
// there are available. The console API lives at the root: the management
// consoles and the bot host call /data, /codes, /generate, /extend,
// /create, /redeem, the remind/leave endpoints, /job/run, and the
// /config and /permissions documents.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	secure := coreCfg.Env == "prod"
	authMgr, err := auth.NewManager(appCfg.SessionKey, appCfg.SessionDomain, appCfg.AdminPassword, appCfg.APIToken, secure, logger)
	if err != nil {
		logger.Error("auth manager init failed", zap.Error(err))
		return nil, err
	}

	membershipStore := membershipstore.New(deps.MongoDatabase)
	codeStore := codestore.New(deps.MongoDatabase)
	settingsStore := settingsstore.New(deps.MongoDatabase)
	engine := renewal.New(membershipStore, codeStore, settingsStore, logger)

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	endpoints := bot.ParseEndpoints(appCfg.BotAPIURLs)
	healthHandler := healthfeature.NewHandler(deps.MongoClient, len(endpoints), logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Prometheus metrics
	r.Handle("/metrics", metrics.Handler())

	// Operator credentials
	loginHandler := loginfeature.NewHandler(authMgr, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))
	r.Mount("/logout", loginfeature.LogoutRoutes(loginHandler))

	// Console API at the root
	configHandler := configapifeature.NewHandler(settingsStore, logger)
	consoleHandler := consolefeature.NewHandler(
		membershipStore, codeStore, settingsStore,
		engine, sweeper, botClient, botClient, logger)
	r.Mount("/", consolefeature.Routes(consoleHandler, configHandler, authMgr))

	return r, nil
}
