package workflow

import (
	"context"

	"bitbucket.org/mohealth/registry_backend/models"
)

// Store is the narrow persistence surface the provisioning and recovery
// workflows need. The gorm-backed implementation lives below; tests
// substitute fakes.
type Store interface {
	GetMemberByNIN(ctx context.Context, nin string) (*models.TeamMember, error)
	GetMemberByIdentifier(ctx context.Context, identifier string) (*models.TeamMember, error)
	GetLocationByHfrCode(ctx context.Context, hfrCode string) (*models.Location, error)
	// CreateMember returns ErrDuplicateIdentifier on a natural-key collision.
	CreateMember(ctx context.Context, member *models.TeamMember) error
	GetPendingRecoveryAccounts(ctx context.Context, limit int) ([]*models.RecoveryAccount, error)
	MarkRecoveryCompleted(ctx context.Context, id int) error
	MarkRecoveryFailed(ctx context.Context, id int, errorLog string) error
}

type gormStore struct{}

// NewStore returns the gorm-backed Store.
func NewStore() Store {
	return gormStore{}
}

func (gormStore) GetMemberByNIN(ctx context.Context, nin string) (*models.TeamMember, error) {
	return models.GetTeamMemberByNIN(ctx, nin)
}

func (gormStore) GetMemberByIdentifier(ctx context.Context, identifier string) (*models.TeamMember, error) {
	return models.GetTeamMemberByIdentifier(ctx, identifier)
}

func (gormStore) GetLocationByHfrCode(ctx context.Context, hfrCode string) (*models.Location, error) {
	return models.GetLocationByHfrCode(ctx, hfrCode)
}

func (gormStore) CreateMember(ctx context.Context, member *models.TeamMember) error {
	err := models.CreateTeamMember(ctx, member)
	if err != nil && models.IsDuplicateKeyErr(err) {
		return ErrDuplicateIdentifier
	}
	return err
}

func (gormStore) GetPendingRecoveryAccounts(ctx context.Context, limit int) ([]*models.RecoveryAccount, error) {
	return models.GetPendingRecoveryAccounts(ctx, limit)
}

func (gormStore) MarkRecoveryCompleted(ctx context.Context, id int) error {
	return models.MarkRecoveryCompleted(ctx, id)
}

func (gormStore) MarkRecoveryFailed(ctx context.Context, id int, errorLog string) error {
	return models.MarkRecoveryFailed(ctx, id, errorLog)
}
