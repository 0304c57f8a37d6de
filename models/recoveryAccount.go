package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
	"gorm.io/gorm"
)

const (
	RecoveryStatusPending   = "PENDING"
	RecoveryStatusCompleted = "COMPLETED"
	RecoveryStatusFailed    = "FAILED"
)

// RecoveryAccount is a queued person still waiting to be provisioned.
// Only the recovery workflow mutates these rows.
type RecoveryAccount struct {
	ID          int    `gorm:"primary_key" json:"id"`
	NIN         string `gorm:"index;size:32;not null" json:"nin"`
	FirstName   string `gorm:"size:100" json:"first_name"`
	MiddleName  string `gorm:"size:100" json:"middle_name"`
	LastName    string `gorm:"size:100" json:"last_name"`
	Gender      string `gorm:"size:1" json:"gender"`
	Birthdate   string `gorm:"size:10" json:"birthdate"`
	Email       string `gorm:"size:255" json:"email"`
	PhoneNumber string `gorm:"size:32" json:"phone_number"`
	HfrCode     string `gorm:"size:32" json:"hfr_code"`

	// MemberIdentifier optionally references an existing team-membership row
	// whose facility is inherited when the account carries no location.
	MemberIdentifier string `gorm:"size:128" json:"member_identifier"`

	Status      string     `gorm:"index;size:20;not null;default:PENDING" json:"status"`
	ErrorLog    string     `gorm:"type:text" json:"error_log"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateRecoveryAccount(ctx context.Context, account *RecoveryAccount) error {
	db := config.GetDB()
	if account.Status == "" {
		account.Status = RecoveryStatusPending
	}
	return db.WithContext(ctx).Create(account).Error
}

func GetRecoveryAccountByNIN(ctx context.Context, nin string) (*RecoveryAccount, error) {
	db := config.GetDB()
	var account RecoveryAccount
	err := db.WithContext(ctx).Where("nin = ?", nin).Order("id DESC").Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetPendingRecoveryAccounts returns up to limit queued accounts, oldest first.
func GetPendingRecoveryAccounts(ctx context.Context, limit int) ([]*RecoveryAccount, error) {
	db := config.GetDB()
	var accounts []*RecoveryAccount
	q := db.WithContext(ctx).
		Where("status = ?", RecoveryStatusPending).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&accounts).Error
	return accounts, err
}

func MarkRecoveryCompleted(ctx context.Context, id int) error {
	now := time.Now()
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&RecoveryAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       RecoveryStatusCompleted,
			"error_log":    "",
			"processed_at": &now,
		}).Error
}

func MarkRecoveryFailed(ctx context.Context, id int, errorLog string) error {
	now := time.Now()
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&RecoveryAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       RecoveryStatusFailed,
			"error_log":    errorLog,
			"processed_at": &now,
		}).Error
}
