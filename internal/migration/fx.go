package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	billingdomain "github.com/craftcv/craftcv/internal/billing/domain"
	"github.com/craftcv/craftcv/internal/config"
	orgdomain "github.com/craftcv/craftcv/internal/organization/domain"
	plandomain "github.com/craftcv/craftcv/internal/planenforcement/domain"
	lockdomain "github.com/craftcv/craftcv/internal/softlock/domain"
	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres dialects (sqlite for local dev, mysql) derive the
		// schema from the models instead.
		return conn.AutoMigrate(
			&orgdomain.Organization{},
			&orgdomain.OrganizationMember{},
			&usagedomain.UsageCounter{},
			&plandomain.PlanEnforcementRecord{},
			&lockdomain.SoftLock{},
			&billingdomain.OverageEvent{},
		)
	}),
)
