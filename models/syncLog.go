package models

import (
	"context"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
)

const (
	SyncLogStatusSuccess = "SUCCESS"
	SyncLogStatusSkipped = "SKIPPED"
)

const (
	SyncLogActionUpsert = "upsert"
)

// SyncLog is an append-only diagnostic record, one per synced source record.
// Rows are never updated and never read back by the engine.
type SyncLog struct {
	ID         int       `gorm:"primary_key" json:"id"`
	EntityType string    `gorm:"index;size:50;not null" json:"entity_type"`
	EntityUuid string    `gorm:"size:64" json:"entity_uuid"`
	Action     string    `gorm:"size:20" json:"action"`
	Status     string    `gorm:"size:20" json:"status"`
	Details    string    `gorm:"type:text" json:"details"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func AppendSyncLog(ctx context.Context, entityType, entityUuid, action, status, details string) error {
	db := config.GetDB()
	entry := SyncLog{
		EntityType: entityType,
		EntityUuid: entityUuid,
		Action:     action,
		Status:     status,
		Details:    details,
	}
	return db.WithContext(ctx).Create(&entry).Error
}
