package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
	"gorm.io/gorm"
)

// TeamMember is the local mirror of one provisioned health-worker account.
// It flattens the upstream person, user, team and member records into a
// single row; its presence implies the whole upstream chain exists.
type TeamMember struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Identifier   string    `gorm:"uniqueIndex;size:128;not null" json:"identifier"`
	PersonUuid   string    `gorm:"index;size:64" json:"person_uuid"`
	UserUuid     string    `gorm:"size:64" json:"user_uuid"`
	Username     string    `gorm:"index;size:64" json:"username"`
	PasswordHash string    `gorm:"size:100" json:"-"`
	FirstName    string    `gorm:"size:100" json:"first_name"`
	MiddleName   string    `gorm:"size:100" json:"middle_name"`
	LastName     string    `gorm:"size:100" json:"last_name"`
	Gender       string    `gorm:"size:1" json:"gender"`
	Birthdate    string    `gorm:"size:10" json:"birthdate"`
	NIN          string    `gorm:"uniqueIndex;size:32" json:"nin"`
	Email        string    `gorm:"size:255" json:"email"`
	PhoneNumber  string    `gorm:"size:32" json:"phone_number"`
	TeamUuid     string    `gorm:"index;size:64" json:"team_uuid"`
	TeamName     string    `gorm:"size:255" json:"team_name"`
	LocationUuid string    `gorm:"size:64" json:"location_uuid"`
	HfrCode      string    `gorm:"index;size:32" json:"hfr_code"`
	Role         string    `gorm:"size:64" json:"role"`
	JoinDate     string    `gorm:"size:10" json:"join_date"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateTeamMember(ctx context.Context, member *TeamMember) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(member).Error
}

// UpsertTeamMember creates the row, updating the existing one when the
// identifier is already present.
func UpsertTeamMember(ctx context.Context, member *TeamMember) error {
	db := config.GetDB()
	err := db.WithContext(ctx).Create(member).Error
	if err == nil {
		return nil
	}
	if !IsDuplicateKeyErr(err) {
		return err
	}
	return db.WithContext(ctx).
		Model(&TeamMember{}).
		Where("identifier = ?", member.Identifier).
		Updates(member).Error
}

func GetTeamMemberByNIN(ctx context.Context, nin string) (*TeamMember, error) {
	db := config.GetDB()
	var member TeamMember
	err := db.WithContext(ctx).Where("nin = ?", nin).Take(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func GetTeamMemberByUsername(ctx context.Context, username string) (*TeamMember, error) {
	db := config.GetDB()
	var member TeamMember
	err := db.WithContext(ctx).Where("username = ?", username).Take(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func GetTeamMemberByIdentifier(ctx context.Context, identifier string) (*TeamMember, error) {
	db := config.GetDB()
	var member TeamMember
	err := db.WithContext(ctx).Where("identifier = ?", identifier).Take(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func GetTeamMembers(ctx context.Context, page int, pageSize int) ([]*TeamMember, error) {
	db := config.GetDB()
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	var members []*TeamMember
	err := db.WithContext(ctx).
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&members).Error
	return members, err
}
