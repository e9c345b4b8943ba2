package migrate

import (
	"context"
	"fmt"

	"github.com/civicconnect/civic-backend/pkg/config"
	"github.com/civicconnect/civic-backend/pkg/db"
	"github.com/civicconnect/civic-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date on boot in dev when
// CIVIC_AUTO_MIGRATE is set. SQLite gets the mirrored schema since the
// goose files are postgres DDL.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "migrate.sqlite_schema")
		return ApplySQLiteSchema(client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	fsys, err := Source("")
	if err != nil {
		return err
	}
	m, err := New(sqlDB, fsys, nil)
	if err != nil {
		return err
	}
	if err := m.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "migrate.up_complete")
	return nil
}
