package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"

	"bitbucket.org/mohealth/registry_backend/config"
	"bitbucket.org/mohealth/registry_backend/gateway"
	"github.com/sirupsen/logrus"
)

// fakeUpstream is a scripted gateway.Client recording every call. failOn is
// "METHOD path"; matching calls return failErr.
type fakeUpstream struct {
	mu           sync.Mutex
	calls        []string
	failOn       string
	failErr      error
	existingTeam bool
}

func (f *fakeUpstream) record(method, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method+" "+path)
}

func (f *fakeUpstream) shouldFail(method, path string) error {
	if f.failOn != "" && f.failOn == method+" "+path {
		if f.failErr != nil {
			return f.failErr
		}
		return &gateway.APIError{System: "openmrs", Status: 500, Message: "scripted failure"}
	}
	return nil
}

func (f *fakeUpstream) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	f.record("GET", path)
	if err := f.shouldFail("GET", path); err != nil {
		return nil, err
	}
	switch path {
	case "/role":
		return json.RawMessage(`{"results":[{"uuid":"role-1"}]}`), nil
	case "/team/team":
		if f.existingTeam {
			return json.RawMessage(`{"results":[{"uuid":"team-9","teamName":"Existing Team"}]}`), nil
		}
		return json.RawMessage(`{"results":[]}`), nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeUpstream) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	f.record("POST", path)
	if err := f.shouldFail("POST", path); err != nil {
		return nil, err
	}
	switch {
	case path == "/person":
		return json.RawMessage(`{"uuid":"person-1"}`), nil
	case strings.HasPrefix(path, "/person/") && strings.HasSuffix(path, "/attribute"):
		return json.RawMessage(`{}`), nil
	case path == "/user":
		return json.RawMessage(`{"uuid":"user-1"}`), nil
	case path == "/team/team":
		return json.RawMessage(`{"uuid":"team-1"}`), nil
	case path == "/team/teammember":
		return json.RawMessage(`{"uuid":"member-1"}`), nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeUpstream) Put(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	f.record("PUT", path)
	return json.RawMessage(`{}`), nil
}

func (f *fakeUpstream) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	f.record("DELETE", path)
	if err := f.shouldFail("DELETE", path); err != nil {
		return nil, err
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeUpstream) countCalls(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testRegistryConfig() *config.RegistryConfig {
	return &config.RegistryConfig{
		AttributeTypes: config.AttributeTypes{
			NIN:         "at-nin-uuid",
			Email:       "at-email-uuid",
			PhoneNumber: "at-phone-uuid",
		},
		DefaultRole:        "Provider",
		TeamRoleId:         "team-role-1",
		PasswordWords:      []string{"mango", "simba"},
		CountryPhonePrefix: "+255",
		TrunkPrefix:        "0",
	}
}

func validRequest() ProvisionRequest {
	return ProvisionRequest{
		FirstName: "Amina",
		LastName:  "Juma",
		Gender:    "F",
		NIN:       "19900115-12345-12345-12",
		Email:     "amina@example.org",
		HfrCode:   "HF123",
	}
}

func newTestProvisioner(upstream *fakeUpstream, store *fakeWorkflowStore) *Provisioner {
	return NewProvisioner(upstream, store, testRegistryConfig(), testLogger())
}

func TestProvisionSuccessCreatesFullChain(t *testing.T) {
	upstream := &fakeUpstream{}
	store := newFakeWorkflowStore()

	result, err := newTestProvisioner(upstream, store).Provision(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if result.PersonUuid != "person-1" || result.UserUuid != "user-1" || result.MemberUuid != "member-1" {
		t.Errorf("result uuids = %+v", result)
	}
	if result.Username != "amju" {
		t.Errorf("username = %q, want amju (no phone given)", result.Username)
	}
	if result.Password == "" {
		t.Error("generated password must be returned")
	}
	// NIN and email were given, phone was not.
	if n := upstream.countCalls("POST /person/person-1/attribute"); n != 2 {
		t.Errorf("attribute posts = %d, want 2", n)
	}
	if n := upstream.countCalls("DELETE "); n != 0 {
		t.Errorf("success must not compensate, saw %d deletes", n)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d local rows, want 1", len(store.created))
	}
	row := store.created[0]
	if row.Birthdate != "1990-01-15" {
		t.Errorf("birthdate = %q, want derived from NIN", row.Birthdate)
	}
	if row.PasswordHash == "" || row.PasswordHash == result.Password {
		t.Error("local row must store a hash, not the cleartext password")
	}
	if row.Identifier != result.Identifier || !strings.Contains(row.Identifier, "amju") {
		t.Errorf("identifier = %q", row.Identifier)
	}
}

func TestProvisionDuplicateNINMakesNoUpstreamCalls(t *testing.T) {
	upstream := &fakeUpstream{}
	store := newFakeWorkflowStore()
	store.addMember(validRequest().NIN, "existing-id")

	_, err := newTestProvisioner(upstream, store).Provision(context.Background(), validRequest())
	var dupErr *DuplicateError
	if !errors.As(err, &dupErr) {
		t.Fatalf("error %T, want *DuplicateError", err)
	}
	if len(upstream.calls) != 0 {
		t.Errorf("duplicate NIN must not touch upstream, saw %v", upstream.calls)
	}
}

func TestProvisionUnknownFacilityStopsBeforeUpstream(t *testing.T) {
	upstream := &fakeUpstream{}
	store := newFakeWorkflowStore()
	req := validRequest()
	req.HfrCode = "HF999"

	_, err := newTestProvisioner(upstream, store).Provision(context.Background(), req)
	var locErr *LocationNotFoundError
	if !errors.As(err, &locErr) {
		t.Fatalf("error %T, want *LocationNotFoundError", err)
	}
	if len(upstream.calls) != 0 {
		t.Errorf("unknown facility must not touch upstream, saw %v", upstream.calls)
	}
}

func TestProvisionUserFailureDeletesPersonOnce(t *testing.T) {
	upstream := &fakeUpstream{failOn: "POST /user"}
	store := newFakeWorkflowStore()

	_, err := newTestProvisioner(upstream, store).Provision(context.Background(), validRequest())
	var upErr *UpstreamRejectedError
	if !errors.As(err, &upErr) {
		t.Fatalf("error %T, want *UpstreamRejectedError", err)
	}
	if upErr.Step != StepCreateUser {
		t.Errorf("step = %q, want %q", upErr.Step, StepCreateUser)
	}
	if n := upstream.countCalls("DELETE /person/person-1"); n != 1 {
		t.Errorf("person delete called %d times, want exactly 1", n)
	}
	if len(store.created) != 0 {
		t.Error("no local row may exist after a failed saga")
	}
}

func TestProvisionMemberFailureDeletesPersonAndSkipsLocalWrite(t *testing.T) {
	upstream := &fakeUpstream{failOn: "POST /team/teammember", existingTeam: true}
	store := newFakeWorkflowStore()

	_, err := newTestProvisioner(upstream, store).Provision(context.Background(), validRequest())
	var upErr *UpstreamRejectedError
	if !errors.As(err, &upErr) {
		t.Fatalf("error %T, want *UpstreamRejectedError", err)
	}
	if upErr.Step != StepCreateMember {
		t.Errorf("step = %q, want %q", upErr.Step, StepCreateMember)
	}
	if n := upstream.countCalls("DELETE /person/person-1"); n != 1 {
		t.Errorf("person delete called %d times, want exactly 1", n)
	}
	if len(store.created) != 0 {
		t.Error("no local row may exist after a failed saga")
	}
}

func TestProvisionAttributeFailureCarriesSubCode(t *testing.T) {
	upstream := &fakeUpstream{failOn: "POST /person/person-1/attribute"}
	store := newFakeWorkflowStore()

	_, err := newTestProvisioner(upstream, store).Provision(context.Background(), validRequest())
	var upErr *UpstreamRejectedError
	if !errors.As(err, &upErr) {
		t.Fatalf("error %T, want *UpstreamRejectedError", err)
	}
	// NIN is always present and attached first.
	if upErr.SubCode != 1 {
		t.Errorf("sub-code = %d, want 1", upErr.SubCode)
	}
	if n := upstream.countCalls("DELETE /person/person-1"); n != 1 {
		t.Errorf("person delete called %d times, want exactly 1", n)
	}
}

func TestProvisionDuplicateUsernameReportsConflict(t *testing.T) {
	upstream := &fakeUpstream{
		failOn:  "POST /user",
		failErr: &gateway.APIError{System: "openmrs", Status: 409, Message: "username exists"},
	}
	store := newFakeWorkflowStore()

	_, err := newTestProvisioner(upstream, store).Provision(context.Background(), validRequest())
	var upErr *UpstreamRejectedError
	if !errors.As(err, &upErr) {
		t.Fatalf("error %T, want *UpstreamRejectedError", err)
	}
	if !strings.Contains(err.Error(), "already taken") {
		t.Errorf("error %q should name the taken username", err)
	}
	if n := upstream.countCalls("DELETE /person/person-1"); n != 1 {
		t.Errorf("person delete called %d times, want exactly 1", n)
	}
}

func TestProvisionMissingAttributeTypeDeletesPerson(t *testing.T) {
	upstream := &fakeUpstream{}
	store := newFakeWorkflowStore()
	cfg := testRegistryConfig()
	cfg.AttributeTypes.Email = ""
	p := NewProvisioner(upstream, store, cfg, testLogger())

	_, err := p.Provision(context.Background(), validRequest())
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error %T (%v), want *ConfigurationError", err, err)
	}
	if cfgErr.Setting != "ATTRIBUTE_TYPE_EMAIL" {
		t.Errorf("setting = %q, want ATTRIBUTE_TYPE_EMAIL", cfgErr.Setting)
	}
	if n := upstream.countCalls("DELETE /person/person-1"); n != 1 {
		t.Errorf("person delete called %d times, want exactly 1", n)
	}
	if len(store.created) != 0 {
		t.Error("no local row may exist after a failed saga")
	}
}

func TestProvisionLocalDuplicateDoesNotCompensate(t *testing.T) {
	upstream := &fakeUpstream{existingTeam: true}
	store := newFakeWorkflowStore()
	store.createErr = fmt.Errorf("create member: %w", ErrDuplicateIdentifier)

	_, err := newTestProvisioner(upstream, store).Provision(context.Background(), validRequest())
	var dupErr *DuplicateError
	if !errors.As(err, &dupErr) {
		t.Fatalf("error %T, want *DuplicateError", err)
	}
	if n := upstream.countCalls("DELETE "); n != 0 {
		t.Errorf("local duplicate must not undo upstream state, saw %d deletes", n)
	}
}

func TestProvisionLocalWriteFailureKeepsUpstreamState(t *testing.T) {
	upstream := &fakeUpstream{existingTeam: true}
	store := newFakeWorkflowStore()
	store.createErr = errors.New("mysql gone away")

	_, err := newTestProvisioner(upstream, store).Provision(context.Background(), validRequest())
	var pErr *PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("error %T, want *PersistenceError", err)
	}
	if n := upstream.countCalls("DELETE "); n != 0 {
		t.Errorf("persistence failure must not undo upstream state, saw %d deletes", n)
	}
}

func TestProvisionValidation(t *testing.T) {
	upstream := &fakeUpstream{}
	store := newFakeWorkflowStore()
	p := newTestProvisioner(upstream, store)

	cases := []func(*ProvisionRequest){
		func(r *ProvisionRequest) { r.NIN = "" },
		func(r *ProvisionRequest) { r.FirstName = "" },
		func(r *ProvisionRequest) { r.Gender = "X" },
		func(r *ProvisionRequest) { r.Email = "not-an-email" },
		func(r *ProvisionRequest) { r.HfrCode = "" },
		func(r *ProvisionRequest) { r.Birthdate = "15/01/1990" },
	}
	for i, mutate := range cases {
		req := validRequest()
		mutate(&req)
		_, err := p.Provision(context.Background(), req)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("case %d: error %T (%v), want *ValidationError", i, err, err)
		}
	}
	if len(upstream.calls) != 0 {
		t.Errorf("validation failures must not touch upstream, saw %v", upstream.calls)
	}
}

func TestProvisionReusesExistingTeam(t *testing.T) {
	upstream := &fakeUpstream{existingTeam: true}
	store := newFakeWorkflowStore()

	result, err := newTestProvisioner(upstream, store).Provision(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if result.TeamUuid != "team-9" {
		t.Errorf("team uuid = %q, want the existing team", result.TeamUuid)
	}
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	for _, call := range upstream.calls {
		if call == "POST /team/team" {
			t.Error("no new team may be created when one exists for the location")
		}
	}
}
