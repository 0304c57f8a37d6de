package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bitbucket.org/mohealth/registry_backend/models"
)

// fakeProvisioner tracks concurrent Provision calls and fails scripted NINs.
type fakeProvisioner struct {
	mu          sync.Mutex
	requests    []ProvisionRequest
	failNINs    map[string]bool
	inFlight    int32
	maxInFlight int32
}

func (f *fakeProvisioner) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, current) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	fail := f.failNINs[req.NIN]
	f.mu.Unlock()

	if fail {
		return nil, &UpstreamRejectedError{Step: StepCreateUser, Err: fmt.Errorf("scripted failure")}
	}
	return &ProvisionResult{PersonUuid: "person-" + req.NIN}, nil
}

func pendingAccounts(n int) []*models.RecoveryAccount {
	out := make([]*models.RecoveryAccount, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &models.RecoveryAccount{
			ID:        i,
			NIN:       fmt.Sprintf("1990010%d-12345-12345-1%d", i%10, i%10),
			FirstName: "Worker",
			LastName:  fmt.Sprintf("Number%d", i),
			Gender:    "F",
			HfrCode:   "HF123",
			Status:    models.RecoveryStatusPending,
		})
	}
	return out
}

func TestRecoveryDrainSettlesEveryAccount(t *testing.T) {
	store := newFakeWorkflowStore()
	store.pending = pendingAccounts(10)
	provisioner := &fakeProvisioner{failNINs: map[string]bool{
		store.pending[2].NIN: true,
		store.pending[7].NIN: true,
	}}
	recoverer := &Recoverer{
		Provisioner: provisioner,
		Store:       store,
		Concurrency: 3,
		Logger:      testLogger(),
	}

	report, err := recoverer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.TotalAdded+report.TotalFailed != 10 {
		t.Errorf("settled %d accounts, want 10", report.TotalAdded+report.TotalFailed)
	}
	if report.TotalAdded != 8 || report.TotalFailed != 2 {
		t.Errorf("report = %d added / %d failed, want 8 / 2", report.TotalAdded, report.TotalFailed)
	}
	if len(report.Added) != report.TotalAdded || len(report.Failed) != report.TotalFailed {
		t.Error("report lists must match their totals")
	}
	for _, failed := range report.Failed {
		if failed.Reason == "" {
			t.Error("failed entries must carry a reason")
		}
	}
	if len(store.completed)+len(store.failed) != 10 {
		t.Errorf("marked %d rows, want all 10", len(store.completed)+len(store.failed))
	}
	if len(store.failed) != 2 {
		t.Errorf("marked %d rows failed, want 2", len(store.failed))
	}
	if max := atomic.LoadInt32(&provisioner.maxInFlight); max > 3 {
		t.Errorf("observed %d concurrent provisions, bound is 3", max)
	}
}

func TestRecoveryEmptyQueue(t *testing.T) {
	store := newFakeWorkflowStore()
	recoverer := &Recoverer{Provisioner: &fakeProvisioner{}, Store: store, Logger: testLogger()}

	report, err := recoverer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.TotalAdded != 0 || report.TotalFailed != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
	if report.Added == nil || report.Failed == nil {
		t.Error("report lists must be settled empty slices, not nil")
	}
}

func TestRecoveryInheritsFacilityFromMemberIdentifier(t *testing.T) {
	store := newFakeWorkflowStore()
	store.addMember("11111111-11111-11111-11", "amju0712HF123")
	store.pending = []*models.RecoveryAccount{{
		ID:               1,
		NIN:              "19900101-12345-12345-11",
		FirstName:        "Amina",
		LastName:         "Juma",
		Gender:           "F",
		MemberIdentifier: "amju0712HF123",
	}}
	provisioner := &fakeProvisioner{}
	recoverer := &Recoverer{Provisioner: provisioner, Store: store, Logger: testLogger()}

	report, err := recoverer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.TotalAdded != 1 {
		t.Fatalf("report = %+v, want 1 added", report)
	}
	if len(provisioner.requests) != 1 {
		t.Fatalf("provisioner saw %d requests", len(provisioner.requests))
	}
	if got := provisioner.requests[0].HfrCode; got != "HF123" {
		t.Errorf("inherited HfrCode = %q, want HF123 from the membership row", got)
	}
}

func TestRecoveryDefaultConcurrency(t *testing.T) {
	store := newFakeWorkflowStore()
	store.pending = pendingAccounts(20)
	provisioner := &fakeProvisioner{}
	recoverer := &Recoverer{Provisioner: provisioner, Store: store, Logger: testLogger()}

	if _, err := recoverer.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if max := atomic.LoadInt32(&provisioner.maxInFlight); max > 5 {
		t.Errorf("observed %d concurrent provisions, default bound is 5", max)
	}
}
