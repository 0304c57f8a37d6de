package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
	"bitbucket.org/mohealth/registry_backend/gateway"
	"bitbucket.org/mohealth/registry_backend/models"
	"bitbucket.org/mohealth/registry_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const (
	StepCheckDuplicate   = "checkDuplicate"
	StepResolveLocation  = "resolveLocation"
	StepCreatePerson     = "createPerson"
	StepAttachAttributes = "attachAttributes"
	StepCreateUser       = "createUser"
	StepResolveTeam      = "resolveTeam"
	StepCreateMember     = "createMember"
	StepPersistLocal     = "persistLocal"
)

// Sub-codes for partial attribute failures inside attachAttributes.
const (
	attrSubCodeNIN   = 1
	attrSubCodeEmail = 2
	attrSubCodePhone = 3
)

type ProvisionRequest struct {
	FirstName   string `json:"firstName" validate:"required"`
	MiddleName  string `json:"middleName"`
	LastName    string `json:"lastName" validate:"required"`
	Gender      string `json:"gender" validate:"required,oneof=M F"`
	NIN         string `json:"nin" validate:"required"`
	// Birthdate (YYYY-MM-DD) is the explicit fallback when the NIN does not
	// encode one.
	Birthdate   string `json:"birthdate"`
	Email       string `json:"email" validate:"omitempty,email"`
	PhoneNumber string `json:"phoneNumber"`
	HfrCode     string `json:"hfrCode" validate:"required"`
}

type ProvisionResult struct {
	PersonUuid string `json:"personUuid"`
	UserUuid   string `json:"userUuid"`
	Username   string `json:"username"`
	// Password is the generated cleartext, returned exactly once to the
	// caller; only its bcrypt hash is stored.
	Password   string `json:"password"`
	TeamUuid   string `json:"teamUuid"`
	MemberUuid string `json:"memberUuid"`
	Identifier string `json:"identifier"`
}

// Provisioner runs the account-creation saga: person -> user -> team ->
// team member upstream, then the local mirror row. Steps are strictly
// sequential because each references identifiers the previous one produced.
type Provisioner struct {
	OpenMRS  gateway.Client
	Store    Store
	Cfg      *config.RegistryConfig
	Logger   *logrus.Logger
	validate *validator.Validate
}

func NewProvisioner(openmrs gateway.Client, store Store, cfg *config.RegistryConfig, logger *logrus.Logger) *Provisioner {
	return &Provisioner{
		OpenMRS:  openmrs,
		Store:    store,
		Cfg:      cfg,
		Logger:   logger,
		validate: validator.New(),
	}
}

type provisionState struct {
	req        ProvisionRequest
	birthdate  string
	location   *models.Location
	person     string
	user       string
	username   string
	password   string
	roleUuid   string
	teamUuid   string
	teamName   string
	member     string
	identifier string
}

// Provision creates a fully linked upstream identity and its local mirror,
// or leaves no partial upstream state behind (except after the upstream
// chain has fully succeeded; see PersistenceError).
func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	if err := p.validate.Struct(req); err != nil {
		fields := utils.ProcessValidationErrors(err)
		for field, tag := range fields {
			return nil, &ValidationError{Field: field, Reason: tag}
		}
		return nil, &ValidationError{Reason: err.Error()}
	}

	if req.PhoneNumber != "" {
		if err := utils.ValidatePhoneNumber(req.PhoneNumber, utils.CountryCode); err != nil {
			return nil, &ValidationError{Field: "phoneNumber", Reason: err.Error()}
		}
	}

	birthdate := strings.TrimSpace(req.Birthdate)
	if birthdate != "" {
		if _, err := time.Parse("2006-01-02", birthdate); err != nil {
			return nil, &ValidationError{Field: "birthdate", Reason: "expected YYYY-MM-DD"}
		}
	} else {
		derived, err := BirthdateFromNIN(req.NIN)
		if err != nil {
			return nil, err
		}
		birthdate = derived
	}

	st := &provisionState{req: req, birthdate: birthdate}

	steps := []SagaStep{
		{Name: StepCheckDuplicate, Run: func(ctx context.Context) error { return p.stepCheckDuplicate(ctx, st) }},
		{Name: StepResolveLocation, Run: func(ctx context.Context) error { return p.stepResolveLocation(ctx, st) }},
		{
			Name:       StepCreatePerson,
			Run:        func(ctx context.Context) error { return p.stepCreatePerson(ctx, st) },
			Compensate: func(ctx context.Context) error { return p.deletePerson(ctx, st) },
		},
		{Name: StepAttachAttributes, Run: func(ctx context.Context) error { return p.stepAttachAttributes(ctx, st) }},
		{Name: StepCreateUser, Run: func(ctx context.Context) error { return p.stepCreateUser(ctx, st) }},
		{Name: StepResolveTeam, Run: func(ctx context.Context) error { return p.stepResolveTeam(ctx, st) }},
		{Name: StepCreateMember, Run: func(ctx context.Context) error { return p.stepCreateMember(ctx, st) }},
		{Name: StepPersistLocal, Run: func(ctx context.Context) error { return p.stepPersistLocal(ctx, st) }},
	}

	if err := RunSaga(ctx, p.Logger, steps); err != nil {
		return nil, err
	}

	return &ProvisionResult{
		PersonUuid: st.person,
		UserUuid:   st.user,
		Username:   st.username,
		Password:   st.password,
		TeamUuid:   st.teamUuid,
		MemberUuid: st.member,
		Identifier: st.identifier,
	}, nil
}

// Existence of a local member row for the NIN is a hard reject; no upstream
// call may happen for an already-provisioned person.
func (p *Provisioner) stepCheckDuplicate(ctx context.Context, st *provisionState) error {
	member, err := p.Store.GetMemberByNIN(ctx, st.req.NIN)
	if err != nil {
		return &PersistenceError{Step: StepCheckDuplicate, Err: err}
	}
	if member != nil {
		return &DuplicateError{NIN: st.req.NIN}
	}
	return nil
}

func (p *Provisioner) stepResolveLocation(ctx context.Context, st *provisionState) error {
	location, err := p.Store.GetLocationByHfrCode(ctx, st.req.HfrCode)
	if err != nil {
		return &PersistenceError{Step: StepResolveLocation, Err: err}
	}
	if location == nil {
		return &LocationNotFoundError{HfrCode: st.req.HfrCode}
	}
	st.location = location
	return nil
}

func (p *Provisioner) stepCreatePerson(ctx context.Context, st *provisionState) error {
	payload := map[string]interface{}{
		"names": []map[string]string{{
			"givenName":  st.req.FirstName,
			"middleName": st.req.MiddleName,
			"familyName": st.req.LastName,
		}},
		"gender":    st.req.Gender,
		"birthdate": st.birthdate,
	}

	raw, err := p.OpenMRS.Post(ctx, "/person", payload)
	if err != nil {
		return &UpstreamRejectedError{Step: StepCreatePerson, Err: err}
	}
	uuid, err := uuidFromResponse(raw)
	if err != nil {
		return &UpstreamRejectedError{Step: StepCreatePerson, Err: err}
	}
	st.person = uuid
	return nil
}

// Each contact attribute is a separate upstream call; a partial failure
// surfaces with a numeric sub-code and deletes the person created above.
func (p *Provisioner) stepAttachAttributes(ctx context.Context, st *provisionState) error {
	attrs := []struct {
		subCode int
		typeId  string
		setting string
		value   string
	}{
		{attrSubCodeNIN, p.Cfg.AttributeTypes.NIN, "ATTRIBUTE_TYPE_NIN", st.req.NIN},
		{attrSubCodeEmail, p.Cfg.AttributeTypes.Email, "ATTRIBUTE_TYPE_EMAIL", st.req.Email},
		{attrSubCodePhone, p.Cfg.AttributeTypes.PhoneNumber, "ATTRIBUTE_TYPE_PHONE", st.req.PhoneNumber},
	}

	for _, attr := range attrs {
		if attr.value == "" {
			continue
		}
		if attr.typeId == "" {
			return FailCompensating(&ConfigurationError{Setting: attr.setting}, StepCreatePerson)
		}
		payload := map[string]string{
			"attributeType": attr.typeId,
			"value":         attr.value,
		}
		if _, err := p.OpenMRS.Post(ctx, "/person/"+st.person+"/attribute", payload); err != nil {
			return FailCompensating(
				&UpstreamRejectedError{Step: StepAttachAttributes, SubCode: attr.subCode, Err: err},
				StepCreatePerson,
			)
		}
	}
	return nil
}

func (p *Provisioner) stepCreateUser(ctx context.Context, st *provisionState) error {
	st.username = DeriveUsername(
		st.req.PhoneNumber, st.req.FirstName, st.req.LastName,
		p.Cfg.CountryPhonePrefix, p.Cfg.TrunkPrefix,
	)
	st.password = GeneratePassword(p.Cfg.PasswordWords)

	roleUuid, err := p.resolveRole(ctx, p.Cfg.DefaultRole)
	if err != nil {
		return FailCompensating(err, StepCreatePerson)
	}
	st.roleUuid = roleUuid

	payload := map[string]interface{}{
		"username": st.username,
		"password": st.password,
		"person":   map[string]string{"uuid": st.person},
		"roles":    []map[string]string{{"uuid": roleUuid}},
	}
	raw, err := p.OpenMRS.Post(ctx, "/user", payload)
	if err != nil {
		// Duplicate usernames reject the same way: person must go first.
		if apiErr, ok := gateway.AsAPIError(err); ok && apiErr.IsConflict() {
			err = fmt.Errorf("username %q already taken: %w", st.username, err)
		}
		return FailCompensating(&UpstreamRejectedError{Step: StepCreateUser, Err: err}, StepCreatePerson)
	}
	uuid, err := uuidFromResponse(raw)
	if err != nil {
		return FailCompensating(&UpstreamRejectedError{Step: StepCreateUser, Err: err}, StepCreatePerson)
	}
	st.user = uuid
	return nil
}

func (p *Provisioner) stepResolveTeam(ctx context.Context, st *provisionState) error {
	raw, err := p.OpenMRS.Get(ctx, "/team/team", queryParams("location", st.location.Uuid))
	if err != nil {
		return FailCompensating(&UpstreamRejectedError{Step: StepResolveTeam, Err: err}, StepCreatePerson)
	}

	var list struct {
		Results []struct {
			Uuid     string `json:"uuid"`
			TeamName string `json:"teamName"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return FailCompensating(&UpstreamRejectedError{Step: StepResolveTeam, Err: err}, StepCreatePerson)
	}
	if len(list.Results) > 0 {
		st.teamUuid = list.Results[0].Uuid
		st.teamName = list.Results[0].TeamName
		return nil
	}

	st.teamName = st.location.Name + " Team"
	payload := map[string]interface{}{
		"teamName":       st.teamName,
		"teamIdentifier": utils.CollapseAlphanumeric(st.location.Name + "-Team"),
		"location":       map[string]string{"uuid": st.location.Uuid},
	}
	created, err := p.OpenMRS.Post(ctx, "/team/team", payload)
	if err != nil {
		return FailCompensating(&UpstreamRejectedError{Step: StepResolveTeam, Err: err}, StepCreatePerson)
	}
	uuid, err := uuidFromResponse(created)
	if err != nil {
		return FailCompensating(&UpstreamRejectedError{Step: StepResolveTeam, Err: err}, StepCreatePerson)
	}
	st.teamUuid = uuid
	return nil
}

func (p *Provisioner) stepCreateMember(ctx context.Context, st *provisionState) error {
	st.identifier = strings.ReplaceAll(st.username+st.req.HfrCode, "-", "")

	payload := map[string]interface{}{
		"identifier": st.identifier,
		"joinDate":   time.Now().Format("2006-01-02"),
		"person":     map[string]string{"uuid": st.person},
		"team":       map[string]string{"uuid": st.teamUuid},
		"role":       map[string]string{"uuid": p.Cfg.TeamRoleId},
	}
	raw, err := p.OpenMRS.Post(ctx, "/team/teammember", payload)
	if err != nil {
		return FailCompensating(&UpstreamRejectedError{Step: StepCreateMember, Err: err}, StepCreatePerson)
	}
	uuid, err := uuidFromResponse(raw)
	if err != nil {
		return FailCompensating(&UpstreamRejectedError{Step: StepCreateMember, Err: err}, StepCreatePerson)
	}
	st.member = uuid
	return nil
}

// The local write runs after the whole upstream chain succeeded. Failures
// here never undo the upstream state: the mismatch is logged and surfaced
// as the one accepted inconsistency.
func (p *Provisioner) stepPersistLocal(ctx context.Context, st *provisionState) error {
	hash, err := utils.HashPassword(st.password)
	if err != nil {
		return &PersistenceError{Step: StepPersistLocal, Err: err}
	}

	member := &models.TeamMember{
		Identifier:   st.identifier,
		PersonUuid:   st.person,
		UserUuid:     st.user,
		Username:     st.username,
		PasswordHash: string(hash),
		FirstName:    st.req.FirstName,
		MiddleName:   st.req.MiddleName,
		LastName:     st.req.LastName,
		Gender:       st.req.Gender,
		Birthdate:    st.birthdate,
		NIN:          st.req.NIN,
		Email:        st.req.Email,
		PhoneNumber:  st.req.PhoneNumber,
		TeamUuid:     st.teamUuid,
		TeamName:     st.teamName,
		LocationUuid: st.location.Uuid,
		HfrCode:      st.req.HfrCode,
		Role:         p.Cfg.DefaultRole,
		JoinDate:     time.Now().Format("2006-01-02"),
	}

	if err := p.Store.CreateMember(ctx, member); err != nil {
		if errors.Is(err, ErrDuplicateIdentifier) {
			return &DuplicateError{Identifier: st.identifier}
		}
		config.LogError(p.Logger, "workflow", "stepPersistLocal", "upstream chain succeeded but local write failed", st.identifier, err)
		return &PersistenceError{Step: StepPersistLocal, Err: err}
	}
	return nil
}

func (p *Provisioner) deletePerson(ctx context.Context, st *provisionState) error {
	if st.person == "" {
		return nil
	}
	_, err := p.OpenMRS.Delete(ctx, "/person/"+st.person+"?purge=true")
	return err
}

func (p *Provisioner) resolveRole(ctx context.Context, name string) (string, error) {
	raw, err := p.OpenMRS.Get(ctx, "/role", queryParams("q", name))
	if err != nil {
		return "", &UpstreamRejectedError{Step: StepCreateUser, Err: err}
	}
	var list struct {
		Results []struct {
			Uuid string `json:"uuid"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", &UpstreamRejectedError{Step: StepCreateUser, Err: err}
	}
	if len(list.Results) == 0 {
		return "", &ConfigurationError{Setting: fmt.Sprintf("role %q", name)}
	}
	return list.Results[0].Uuid, nil
}

func queryParams(pairs ...string) url.Values {
	params := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		params.Set(pairs[i], pairs[i+1])
	}
	return params
}

func uuidFromResponse(raw json.RawMessage) (string, error) {
	var parsed struct {
		Uuid string `json:"uuid"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if strings.TrimSpace(parsed.Uuid) == "" {
		return "", fmt.Errorf("upstream response carries no uuid")
	}
	return parsed.Uuid, nil
}
