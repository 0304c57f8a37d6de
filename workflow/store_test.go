package workflow

import (
	"context"
	"sync"

	"bitbucket.org/mohealth/registry_backend/models"
)

// fakeWorkflowStore backs provisioning and recovery tests without a database.
type fakeWorkflowStore struct {
	mu           sync.Mutex
	membersByNIN map[string]*models.TeamMember
	membersById  map[string]*models.TeamMember
	locations    map[string]*models.Location
	created      []*models.TeamMember
	createErr    error
	pending      []*models.RecoveryAccount
	completed    []int
	failed       map[int]string
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{
		membersByNIN: map[string]*models.TeamMember{},
		membersById:  map[string]*models.TeamMember{},
		locations: map[string]*models.Location{
			"HF123": {Uuid: "loc-1", Name: "Mwananyamala", HfrCode: "HF123"},
		},
		failed: map[int]string{},
	}
}

func (s *fakeWorkflowStore) addMember(nin, identifier string) {
	member := &models.TeamMember{NIN: nin, Identifier: identifier, HfrCode: "HF123"}
	s.membersByNIN[nin] = member
	s.membersById[identifier] = member
}

func (s *fakeWorkflowStore) GetMemberByNIN(ctx context.Context, nin string) (*models.TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membersByNIN[nin], nil
}

func (s *fakeWorkflowStore) GetMemberByIdentifier(ctx context.Context, identifier string) (*models.TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membersById[identifier], nil
}

func (s *fakeWorkflowStore) GetLocationByHfrCode(ctx context.Context, hfrCode string) (*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locations[hfrCode], nil
}

func (s *fakeWorkflowStore) CreateMember(ctx context.Context, member *models.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, member)
	s.membersByNIN[member.NIN] = member
	s.membersById[member.Identifier] = member
	return nil
}

func (s *fakeWorkflowStore) GetPendingRecoveryAccounts(ctx context.Context, limit int) ([]*models.RecoveryAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && limit < len(s.pending) {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeWorkflowStore) MarkRecoveryCompleted(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, id)
	return nil
}

func (s *fakeWorkflowStore) MarkRecoveryFailed(ctx context.Context, id int, errorLog string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = errorLog
	return nil
}
