// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	codestore "github.com/dalemusser/renewhub/internal/app/store/codes"
	membershipstore "github.com/dalemusser/renewhub/internal/app/store/memberships"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// EnsureSchema creates the unique indexes the stores rely on: one record
// per group, one live code per token.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := membershipstore.New(deps.MongoDatabase).EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := codestore.New(deps.MongoDatabase).EnsureIndexes(ctx); err != nil {
		return err
	}
	logger.Info("mongo indexes ensured")
	return nil
}
