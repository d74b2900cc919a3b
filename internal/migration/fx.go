package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	authdomain "github.com/extractolabs/conversor/internal/auth/domain"
	"github.com/extractolabs/conversor/internal/config"
	entdomain "github.com/extractolabs/conversor/internal/entitlement/domain"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned SQL is postgres-only; other drivers are for
			// local single-binary setups and take the gorm schema.
			return conn.AutoMigrate(
				&entdomain.UserEntitlement{},
				&usagedomain.DailyUsage{},
				&usagedomain.MonthlyUsage{},
				&usagedomain.AnonymousUsage{},
				&usagedomain.ConversionEvent{},
				&authdomain.AccessToken{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
