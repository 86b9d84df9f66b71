package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"gorm.io/gorm"
)

func createMessageTemplatesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_message_templates",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MessageTemplateModel{}); err != nil {
				return err
			}
			// One active template per (type, channel).
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_message_templates_active ON message_templates (template_type, channel) WHERE is_active = true`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MessageTemplateModel{})
		},
	}
}
