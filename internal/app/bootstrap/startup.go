// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	membershipstore "github.com/dalemusser/renewhub/internal/app/store/memberships"
	settingsstore "github.com/dalemusser/renewhub/internal/app/store/settings"
	"github.com/dalemusser/renewhub/internal/app/system/bot"
	"github.com/dalemusser/renewhub/internal/app/system/sweep"
	"github.com/dalemusser/renewhub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shared components built during Startup. BuildHandler wires the same
// sweeper into the console's on-demand endpoint that the worker runs on
// its ticker, and Shutdown stops the worker.
var (
	botClient   *bot.Client
	sweeper     *sweep.Sweeper
	sweepWorker *workers.RenewalSweep
)

// Startup runs one-time application initialization after DB connections
// and schema setup are complete, but before the HTTP handler is built. It
// builds the bot client and the reconciliation sweeper, and starts the
// periodic sweep worker when enabled.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	endpoints := bot.ParseEndpoints(appCfg.BotAPIURLs)
	botClient = bot.New(endpoints, appCfg.BotAccessToken, appCfg.BotTimeout, logger)

	membershipStore := membershipstore.New(deps.MongoDatabase)
	settingsStore := settingsstore.New(deps.MongoDatabase)
	sweeper = sweep.New(membershipStore, settingsStore, botClient, botClient, logger)

	if appCfg.SweepEnabled {
		sweepWorker = workers.NewRenewalSweep(sweeper, logger, appCfg.SweepInterval)
		sweepWorker.Start()
	} else {
		logger.Info("periodic sweep disabled; reconciliation runs only via the console")
	}
	return nil
}
