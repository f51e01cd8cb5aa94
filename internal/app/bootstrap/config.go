// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for RenewHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, bot_api_urls, etc.
//   - Environment variables: RENEWHUB_MONGO_URI, RENEWHUB_BOT_API_URLS, etc.
//   - Command-line flags: --mongo_uri, --bot_api_urls, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "renew_hub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "session_key", Default: "", Desc: "Session signing key (must be strong in production; empty generates a volatile key)"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	{Name: "admin_password", Default: "", Desc: "Operator password for the console API (empty disables auth; development only)"},
	{Name: "api_token", Default: "", Desc: "Static bearer token for machine callers such as the bot host"},

	// Bot host (OneBot-compatible HTTP API)
	{Name: "bot_api_urls", Default: "", Desc: "Comma-separated bot endpoints: 'bot_id=http://host:port' or bare URLs"},
	{Name: "bot_access_token", Default: "", Desc: "Access token sent to the bot host"},
	{Name: "bot_timeout", Default: "10s", Desc: "Per-call timeout for bot host requests"},

	// Reconciliation job
	{Name: "sweep_enabled", Default: true, Desc: "Run the periodic reconciliation sweep"},
	{Name: "sweep_interval", Default: "1h", Desc: "Time between sweep passes (e.g., 30m, 1h)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, RENEWHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "RENEWHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionDomain: appValues.String("session_domain"),

		AdminPassword: appValues.String("admin_password"),
		APIToken:      appValues.String("api_token"),

		BotAPIURLs:     appValues.String("bot_api_urls"),
		BotAccessToken: appValues.String("bot_access_token"),
		BotTimeout:     appValues.Duration("bot_timeout", 10*time.Second),

		SweepEnabled:  appValues.Bool("sweep_enabled"),
		SweepInterval: appValues.Duration("sweep_interval", time.Hour),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI format is checked here to catch configuration errors
// early, before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.SweepEnabled && appCfg.SweepInterval < time.Minute {
		return fmt.Errorf("sweep_interval %s is below the 1m minimum", appCfg.SweepInterval)
	}

	if appCfg.BotAPIURLs == "" {
		logger.Warn("no bot endpoints configured; reminders and departures will fail until bot_api_urls is set")
	}
	return nil
}
