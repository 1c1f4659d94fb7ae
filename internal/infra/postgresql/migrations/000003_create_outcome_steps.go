package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/repository"
	"gorm.io/gorm"
)

func createOutcomeStepsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_outcome_steps",
		Migrate: func(tx *gorm.DB) error {
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_outcome_steps_outcome_sequence ON outcome_steps (outcome_id, sequence)`,
				`CREATE INDEX IF NOT EXISTS idx_outcome_steps_failed ON outcome_steps (step) WHERE status = 'FAILED'`,
			}
			if err := tx.AutoMigrate(&repository.StepModel{}); err != nil {
				return err
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.StepModel{})
		},
	}
}
