package models

import (
	"context"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
)

// OrgUnit mirrors a DHIS2 organisation unit.
type OrgUnit struct {
	ID          int       `gorm:"primary_key" json:"id"`
	OrgUnitId   string    `gorm:"uniqueIndex;size:32;not null" json:"org_unit_id"`
	Name        string    `gorm:"size:255" json:"name"`
	Code        string    `gorm:"index;size:64" json:"code"`
	Level       int       `json:"level"`
	ParentId    string    `gorm:"size:32" json:"parent_id"`
	Path        string    `gorm:"size:512" json:"path"`
	OpeningDate string    `gorm:"size:10" json:"opening_date"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func UpsertOrgUnit(ctx context.Context, unit *OrgUnit) error {
	db := config.GetDB()
	err := db.WithContext(ctx).Create(unit).Error
	if err == nil {
		return nil
	}
	if !IsDuplicateKeyErr(err) {
		return err
	}
	return db.WithContext(ctx).
		Model(&OrgUnit{}).
		Where("org_unit_id = ?", unit.OrgUnitId).
		Updates(unit).Error
}
