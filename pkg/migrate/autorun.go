package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup, only in dev with the
// auto-migrate flag on. Other environments run cmd/migrate as a release step.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	fsys := Embedded()
	if err := ValidateFS(fsys); err != nil {
		return fmt.Errorf("validating migrations: %w", err)
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	m, err := NewMigrator(sqlDB, fsys)
	if err != nil {
		return err
	}

	applied, err := m.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"applied": len(applied), "source": "embedded"}), "migrate.dev_autorun_completed")
	return nil
}
