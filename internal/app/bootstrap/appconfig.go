// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration: WAFFLE's CoreConfig covers
// the HTTP ports, TLS, logging, and the other framework-level settings.
//
// Everything here is startup configuration. The renewal behavior itself
// (thresholds, reminder template, auto-leave, code defaults) is runtime
// configuration that lives in the console config document in Mongo and is
// re-read on every use.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connection pool size
	MongoMinPoolSize uint64 // Min connection pool size

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionDomain string // Cookie domain (blank means current host)

	// Operator credentials
	AdminPassword string // Operator password for the console API (empty disables the guard)
	APIToken      string // Static bearer token for non-browser callers (empty disables)

	// Bot host configuration
	BotAPIURLs     string        // Comma-separated bot endpoints: "id=url" or bare URLs
	BotAccessToken string        // Access token sent to the bot host
	BotTimeout     time.Duration // Per-call timeout for bot host requests

	// Reconciliation job configuration
	SweepEnabled  bool          // Run the periodic sweep worker
	SweepInterval time.Duration // Time between sweep passes
}
