package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/db"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

// MaybeRunDev brings the schema up at boot, only in dev with
// DROPSHIP_AUTO_MIGRATE set. Postgres gets the goose migrations; sqlite,
// which those files do not target, gets gorm AutoMigrate from the models.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !autoRunEnabled(cfg) {
		return nil
	}
	dialect := client.Dialect()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dialect": dialect})

	if dialect != "postgres" {
		logg.Info(ctx, "dev auto-migrate: gorm automigrate")
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	logg.Info(ctx, "dev auto-migrate: goose up")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return err
	}
	logg.Info(ctx, "dev auto-migrate: done")
	return nil
}

func autoRunEnabled(cfg *config.Config) bool {
	return cfg != nil && cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}
