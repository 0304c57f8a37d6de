package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredSystem = "system"
)

// RegistrySyncRun records one execution of the batch sync engine against a
// remote collection.
type RegistrySyncRun struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	Collection     string     `gorm:"index;size:50;not null" json:"collection"`
	Status         string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy    string     `gorm:"size:20" json:"triggered_by"`
	PagesFetched   int        `json:"pages_fetched"`
	RecordsSynced  int        `json:"records_synced"`
	RecordsSkipped int        `json:"records_skipped"`
	LastError      string     `gorm:"type:text" json:"last_error"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	DurationMs     int64      `json:"duration_ms"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateSyncRun(ctx context.Context, collection string, triggeredBy string) (*RegistrySyncRun, error) {
	db := config.GetDB()
	run := RegistrySyncRun{
		Collection:  collection,
		Status:      SyncRunStatusQueued,
		TriggeredBy: triggeredBy,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func GetSyncRunById(ctx context.Context, id uint) (*RegistrySyncRun, error) {
	db := config.GetDB()
	var run RegistrySyncRun
	err := db.WithContext(ctx).Where("id = ?", id).Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func GetRecentSyncRuns(ctx context.Context, limit int) ([]*RegistrySyncRun, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 20
	}
	var runs []*RegistrySyncRun
	err := db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func UpdateSyncRun(ctx context.Context, id uint, updates map[string]interface{}) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&RegistrySyncRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}
