package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/repository"
	"gorm.io/gorm"
)

func createContactOutcomesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_contact_outcomes",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.OutcomeModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_contact_outcomes_run_position ON contact_outcomes (run_id, position)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.OutcomeModel{})
		},
	}
}
