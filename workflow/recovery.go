package workflow

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/mohealth/registry_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const defaultRecoveryConcurrency = 5

// recoveryLockKey guards against two drains of the pending queue racing
// across service instances.
const recoveryLockKey = "registry:recovery:drain"

// AccountProvisioner is what the recovery drain needs from the saga; the
// concrete Provisioner satisfies it, tests substitute fakes.
type AccountProvisioner interface {
	Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error)
}

type RecoveredAccount struct {
	PersonId string `json:"personId"`
}

type FailedAccount struct {
	PersonId string `json:"personId"`
	Reason   string `json:"reason"`
}

// RecoveryReport is the settled aggregate for one drain: every claimed
// account lands in exactly one of the two lists.
type RecoveryReport struct {
	TotalAdded  int                `json:"totalAdded"`
	TotalFailed int                `json:"totalFailed"`
	Added       []RecoveredAccount `json:"added"`
	Failed      []FailedAccount    `json:"failed"`
}

// Recoverer drains queued recovery accounts through the provisioning saga
// under a fixed worker pool.
type Recoverer struct {
	Provisioner AccountProvisioner
	Store       Store
	Concurrency int
	Logger      *logrus.Logger
	Locker      *redislock.Client
}

type recoveryOutcome struct {
	account *models.RecoveryAccount
	result  *ProvisionResult
	err     error
}

// Run claims every PENDING account, provisions each under at most
// Concurrency workers, marks the row COMPLETED or FAILED, and returns only
// after all claimed accounts have settled.
func (r *Recoverer) Run(ctx context.Context) (*RecoveryReport, error) {
	if r.Locker != nil {
		lock, err := r.Locker.Obtain(ctx, recoveryLockKey, 10*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			r.Logger.WithField("module", "workflow").Warn("recovery drain already running elsewhere, skipping")
			return &RecoveryReport{Added: []RecoveredAccount{}, Failed: []FailedAccount{}}, nil
		}
		if err != nil {
			return nil, err
		}
		defer lock.Release(context.Background())
	}

	accounts, err := r.Store.GetPendingRecoveryAccounts(ctx, 0)
	if err != nil {
		return nil, err
	}

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = defaultRecoveryConcurrency
	}
	if concurrency > len(accounts) {
		concurrency = len(accounts)
	}

	report := &RecoveryReport{Added: []RecoveredAccount{}, Failed: []FailedAccount{}}
	if len(accounts) == 0 {
		return report, nil
	}

	jobs := make(chan *models.RecoveryAccount)
	outcomes := make(chan recoveryOutcome)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for account := range jobs {
				result, err := r.processAccount(ctx, account)
				outcomes <- recoveryOutcome{account: account, result: result, err: err}
			}
		}()
	}

	go func() {
		for _, account := range accounts {
			jobs <- account
		}
		close(jobs)
		wg.Wait()
		close(outcomes)
	}()

	for outcome := range outcomes {
		if outcome.err != nil {
			report.TotalFailed++
			report.Failed = append(report.Failed, FailedAccount{
				PersonId: outcome.account.NIN,
				Reason:   outcome.err.Error(),
			})
			continue
		}
		report.TotalAdded++
		report.Added = append(report.Added, RecoveredAccount{PersonId: outcome.account.NIN})
	}

	r.Logger.WithFields(logrus.Fields{
		"module": "workflow",
		"added":  report.TotalAdded,
		"failed": report.TotalFailed,
	}).Info("recovery drain settled")

	return report, nil
}

// processAccount provisions one queued account and records the outcome on
// its row. Marking errors are logged, not returned: the provisioning
// outcome is what the report must reflect.
func (r *Recoverer) processAccount(ctx context.Context, account *models.RecoveryAccount) (*ProvisionResult, error) {
	req, err := r.buildRequest(ctx, account)
	if err == nil {
		var result *ProvisionResult
		result, err = r.Provisioner.Provision(ctx, req)
		if err == nil {
			if merr := r.Store.MarkRecoveryCompleted(ctx, account.ID); merr != nil {
				r.Logger.WithField("module", "workflow").
					Errorf("account %d provisioned but marking completed failed: %v", account.ID, merr)
			}
			return result, nil
		}
	}

	if merr := r.Store.MarkRecoveryFailed(ctx, account.ID, err.Error()); merr != nil {
		r.Logger.WithField("module", "workflow").
			Errorf("marking account %d failed errored: %v", account.ID, merr)
	}
	return nil, err
}

// buildRequest maps the queued row to a provisioning request. When the row
// carries no facility, the facility is inherited from the existing
// membership row the MemberIdentifier points at.
func (r *Recoverer) buildRequest(ctx context.Context, account *models.RecoveryAccount) (ProvisionRequest, error) {
	req := ProvisionRequest{
		FirstName:   account.FirstName,
		MiddleName:  account.MiddleName,
		LastName:    account.LastName,
		Gender:      account.Gender,
		NIN:         account.NIN,
		Birthdate:   account.Birthdate,
		Email:       account.Email,
		PhoneNumber: account.PhoneNumber,
		HfrCode:     account.HfrCode,
	}

	if req.HfrCode == "" && account.MemberIdentifier != "" {
		member, err := r.Store.GetMemberByIdentifier(ctx, account.MemberIdentifier)
		if err != nil {
			return req, &PersistenceError{Step: StepResolveLocation, Err: err}
		}
		if member != nil {
			req.HfrCode = member.HfrCode
		}
	}

	return req, nil
}
