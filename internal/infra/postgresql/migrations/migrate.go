package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/repository"
	"gorm.io/gorm"
)

// Migrate applies the run store schema. The statements are portable across postgres and sqlite.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_onboarding_runs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.RunModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_onboarding_runs_org_project ON onboarding_runs (organization_name, project_slug)`,
					`CREATE INDEX IF NOT EXISTS idx_onboarding_runs_status_started ON onboarding_runs (status, started_at)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.RunModel{})
			},
		},
		createContactOutcomesTable(),
		createOutcomeStepsTable(),
	})

	return m.Migrate()
}
