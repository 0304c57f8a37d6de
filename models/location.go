package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
	"gorm.io/gorm"
)

// Location mirrors an upstream OpenMRS location (health facility).
type Location struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Uuid        string    `gorm:"uniqueIndex;size:64;not null" json:"uuid"`
	Name        string    `gorm:"size:255" json:"name"`
	HfrCode     string    `gorm:"index;size:32" json:"hfr_code"`
	ParentUuid  string    `gorm:"size:64" json:"parent_uuid"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func UpsertLocation(ctx context.Context, location *Location) error {
	db := config.GetDB()
	err := db.WithContext(ctx).Create(location).Error
	if err == nil {
		return nil
	}
	if !IsDuplicateKeyErr(err) {
		return err
	}
	return db.WithContext(ctx).
		Model(&Location{}).
		Where("uuid = ?", location.Uuid).
		Updates(location).Error
}

// GetLocationByHfrCode checks redis first; location rows change only when a
// sync run rewrites them.
func GetLocationByHfrCode(ctx context.Context, hfrCode string) (*Location, error) {
	key := "Location:hfr:" + hfrCode

	var location Location
	if exists, err := config.GetRedisObject(key, &location); err != nil {
		return nil, err
	} else if exists {
		return &location, nil
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Where("hfr_code = ?", hfrCode).Take(&location).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	_ = config.SetRedisObject(key, &location, 10*time.Minute)
	return &location, nil
}
