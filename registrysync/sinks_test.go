package registrysync

import (
	"encoding/json"
	"testing"

	"bitbucket.org/mohealth/registry_backend/config"
)

var testAttrTypes = config.AttributeTypes{
	NIN:         "at-nin-uuid",
	Email:       "at-email-uuid",
	PhoneNumber: "at-phone-uuid",
}

func TestMapTeamMemberRecordFlattensByAttributeTypeUuid(t *testing.T) {
	raw := json.RawMessage(`{
		"uuid": "tm-1",
		"identifier": "am0712HF123",
		"dateJoined": "2024-03-01",
		"role": "Provider",
		"person": {
			"uuid": "p-1",
			"gender": "F",
			"birthdate": "1990-01-15",
			"names": [{"givenName": "Amina", "middleName": "S", "familyName": "Juma"}],
			"attributes": [
				{"value": "19900115-12345-12345-12", "attributeType": {"uuid": "at-nin-uuid", "display": "Phone Number"}},
				{"value": "amina@example.org", "attributeType": {"uuid": "at-email-uuid", "display": "NIN"}},
				{"value": "0712345678", "attributeType": {"uuid": "at-phone-uuid", "display": "Email"}},
				{"value": "ignored", "attributeType": {"uuid": "at-unknown", "display": "Other"}}
			]
		},
		"team": {
			"uuid": "team-1",
			"teamName": "Mwananyamala Team",
			"location": {"uuid": "loc-1", "name": "Mwananyamala", "hfrCode": "HF123"}
		}
	}`)

	member, err := MapTeamMemberRecord(testAttrTypes, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Matching is by attribute-type uuid; the display labels above are
	// deliberately shuffled.
	if member.NIN != "19900115-12345-12345-12" {
		t.Errorf("NIN = %q", member.NIN)
	}
	if member.Email != "amina@example.org" {
		t.Errorf("Email = %q", member.Email)
	}
	if member.PhoneNumber != "0712345678" {
		t.Errorf("PhoneNumber = %q", member.PhoneNumber)
	}
	if member.FirstName != "Amina" || member.LastName != "Juma" {
		t.Errorf("name = %q %q", member.FirstName, member.LastName)
	}
	if member.HfrCode != "HF123" || member.TeamUuid != "team-1" {
		t.Errorf("team fields = %q %q", member.HfrCode, member.TeamUuid)
	}
}

func TestMapTeamMemberRecordRejectsMissingIdentifier(t *testing.T) {
	raw := json.RawMessage(`{"uuid": "tm-1", "person": {"uuid": "p-1"}}`)
	if _, err := MapTeamMemberRecord(testAttrTypes, raw); err == nil {
		t.Fatal("expected error for missing identifier")
	}

	raw = json.RawMessage(`{"identifier": "x", "person": {"uuid": "p-1"}}`)
	if _, err := MapTeamMemberRecord(testAttrTypes, raw); err == nil {
		t.Fatal("expected error for missing uuid")
	}
}
