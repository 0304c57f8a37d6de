package registrysync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"bitbucket.org/mohealth/registry_backend/config"
	"bitbucket.org/mohealth/registry_backend/models"
)

// teamMemberRecord is the OpenMRS team-member list representation.
type teamMemberRecord struct {
	Uuid       string `json:"uuid"`
	Identifier string `json:"identifier"`
	DateJoined string `json:"dateJoined"`
	Role       string `json:"role"`
	Person     struct {
		Uuid      string `json:"uuid"`
		Gender    string `json:"gender"`
		Birthdate string `json:"birthdate"`
		Names     []struct {
			GivenName  string `json:"givenName"`
			MiddleName string `json:"middleName"`
			FamilyName string `json:"familyName"`
		} `json:"names"`
		Attributes []struct {
			Value         string `json:"value"`
			AttributeType struct {
				Uuid    string `json:"uuid"`
				Display string `json:"display"`
			} `json:"attributeType"`
		} `json:"attributes"`
	} `json:"person"`
	Team struct {
		Uuid     string `json:"uuid"`
		TeamName string `json:"teamName"`
		Location struct {
			Uuid    string `json:"uuid"`
			Name    string `json:"name"`
			HfrCode string `json:"hfrCode"`
		} `json:"location"`
	} `json:"team"`
}

// MapTeamMemberRecord flattens one remote team-member record into the local
// row shape. Contact attributes are matched by attribute-type identifier
// against the configured mapping table, never by display label.
func MapTeamMemberRecord(attrTypes config.AttributeTypes, raw json.RawMessage) (*models.TeamMember, error) {
	var rec teamMemberRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.Uuid) == "" {
		return nil, errors.New("team member uuid missing")
	}
	if strings.TrimSpace(rec.Identifier) == "" {
		return nil, errors.New("team member identifier missing")
	}

	member := &models.TeamMember{
		Identifier:   rec.Identifier,
		PersonUuid:   rec.Person.Uuid,
		Gender:       rec.Person.Gender,
		Birthdate:    rec.Person.Birthdate,
		TeamUuid:     rec.Team.Uuid,
		TeamName:     rec.Team.TeamName,
		LocationUuid: rec.Team.Location.Uuid,
		HfrCode:      rec.Team.Location.HfrCode,
		Role:         rec.Role,
		JoinDate:     rec.DateJoined,
	}
	if len(rec.Person.Names) > 0 {
		member.FirstName = rec.Person.Names[0].GivenName
		member.MiddleName = rec.Person.Names[0].MiddleName
		member.LastName = rec.Person.Names[0].FamilyName
	}

	for _, attr := range rec.Person.Attributes {
		field, ok := attrTypes.FieldForAttributeType(attr.AttributeType.Uuid)
		if !ok {
			continue
		}
		switch field {
		case "nin":
			member.NIN = attr.Value
		case "email":
			member.Email = attr.Value
		case "phoneNumber":
			member.PhoneNumber = attr.Value
		}
	}

	return member, nil
}

type teamMemberSink struct {
	attrTypes config.AttributeTypes
}

func NewTeamMemberSink(attrTypes config.AttributeTypes) Sink {
	return &teamMemberSink{attrTypes: attrTypes}
}

func (s *teamMemberSink) Apply(ctx context.Context, raw json.RawMessage) (string, error) {
	member, err := MapTeamMemberRecord(s.attrTypes, raw)
	if err != nil {
		return "", err
	}
	if err := models.UpsertTeamMember(ctx, member); err != nil {
		return "", err
	}
	return member.PersonUuid, nil
}

type locationRecord struct {
	Uuid           string `json:"uuid"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	HfrCode        string `json:"hfrCode"`
	ParentLocation struct {
		Uuid string `json:"uuid"`
	} `json:"parentLocation"`
}

type locationSink struct{}

func NewLocationSink() Sink {
	return &locationSink{}
}

func (s *locationSink) Apply(ctx context.Context, raw json.RawMessage) (string, error) {
	var rec locationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", err
	}
	if strings.TrimSpace(rec.Uuid) == "" {
		return "", errors.New("location uuid missing")
	}

	location := &models.Location{
		Uuid:        rec.Uuid,
		Name:        rec.Name,
		HfrCode:     rec.HfrCode,
		ParentUuid:  rec.ParentLocation.Uuid,
		Description: rec.Description,
	}
	if err := models.UpsertLocation(ctx, location); err != nil {
		return "", err
	}
	return rec.Uuid, nil
}

type orgUnitRecord struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Level       int    `json:"level"`
	Path        string `json:"path"`
	OpeningDate string `json:"openingDate"`
	Parent      struct {
		Id string `json:"id"`
	} `json:"parent"`
}

type orgUnitSink struct{}

func NewOrgUnitSink() Sink {
	return &orgUnitSink{}
}

func (s *orgUnitSink) Apply(ctx context.Context, raw json.RawMessage) (string, error) {
	var rec orgUnitRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", err
	}
	if strings.TrimSpace(rec.Id) == "" {
		return "", errors.New("org unit id missing")
	}

	unit := &models.OrgUnit{
		OrgUnitId:   rec.Id,
		Name:        rec.Name,
		Code:        rec.Code,
		Level:       rec.Level,
		ParentId:    rec.Parent.Id,
		Path:        rec.Path,
		OpeningDate: rec.OpeningDate,
	}
	if err := models.UpsertOrgUnit(ctx, unit); err != nil {
		return "", err
	}
	return rec.Id, nil
}

// practitionerRecord is the OpenSRP practitioner list representation. A
// practitioner without a local team-member row is queued for recovery
// provisioning.
type practitionerRecord struct {
	Identifier   string `json:"identifier"`
	FirstName    string `json:"firstName"`
	MiddleName   string `json:"middleName"`
	LastName     string `json:"lastName"`
	Gender       string `json:"gender"`
	Birthdate    string `json:"birthdate"`
	Email        string `json:"email"`
	Mobile       string `json:"mobile"`
	FacilityCode string `json:"facilityCode"`
}

type practitionerSink struct{}

func NewPractitionerSink() Sink {
	return &practitionerSink{}
}

func (s *practitionerSink) Apply(ctx context.Context, raw json.RawMessage) (string, error) {
	var rec practitionerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", err
	}
	nin := strings.TrimSpace(rec.Identifier)
	if nin == "" {
		return "", errors.New("practitioner identifier missing")
	}

	member, err := models.GetTeamMemberByNIN(ctx, nin)
	if err != nil {
		return "", err
	}
	if member != nil {
		// Already provisioned; nothing to queue.
		return nin, nil
	}

	queued, err := models.GetRecoveryAccountByNIN(ctx, nin)
	if err != nil {
		return "", err
	}
	if queued != nil {
		return nin, nil
	}

	account := &models.RecoveryAccount{
		NIN:         nin,
		FirstName:   rec.FirstName,
		MiddleName:  rec.MiddleName,
		LastName:    rec.LastName,
		Gender:      rec.Gender,
		Birthdate:   rec.Birthdate,
		Email:       rec.Email,
		PhoneNumber: rec.Mobile,
		HfrCode:     rec.FacilityCode,
		Status:      models.RecoveryStatusPending,
	}
	if err := models.CreateRecoveryAccount(ctx, account); err != nil {
		return "", err
	}
	return nin, nil
}
