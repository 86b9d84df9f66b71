package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"gorm.io/gorm"
)

func createNotificationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
				return err
			}
			// The unique identity index is the ON CONFLICT target of the notification upsert.
			return execAll(tx,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_identity ON notifications (campaign_kind, campaign_id, recipient_kind, recipient_id, notification_type, channel)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_pending_due ON notifications (scheduled_at) WHERE status = 'PENDING'`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_campaign_status ON notifications (campaign_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_status_channel_created ON notifications (status, channel, created_at)`,
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{})
		},
	}
}
