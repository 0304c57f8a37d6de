package config

import (
	"fmt"
	"os"
	"strings"
)

// UpstreamConfig holds base URL + credentials for one upstream system.
type UpstreamConfig struct {
	BaseURL  string
	Username string
	Password string
	// Token is used instead of basic auth when set (OpenSRP).
	Token string
}

// AttributeTypes maps local contact fields to the upstream person-attribute-type
// identifiers. All three are required; provisioning cannot attach contact
// attributes without them.
type AttributeTypes struct {
	NIN         string
	Email       string
	PhoneNumber string
}

type RegistryConfig struct {
	OpenMRS UpstreamConfig
	DHIS2   UpstreamConfig
	OpenSRP UpstreamConfig

	AttributeTypes AttributeTypes

	// DefaultRole is the name of the upstream role assigned to new users.
	DefaultRole string
	// TeamRoleId identifies the team role attached to new team members.
	TeamRoleId string

	// PasswordWords feeds generated passwords (two capitalized words + 3 digits).
	PasswordWords []string

	// CountryPhonePrefix is replaced by TrunkPrefix when deriving usernames.
	CountryPhonePrefix string
	TrunkPrefix        string

	RecoveryConcurrency int
	SyncPageSize        int
}

var defaultPasswordWords = []string{
	"mango", "simba", "pweza", "tembo", "zebra", "jua", "mvua", "nyota",
	"safari", "pamba", "chai", "moto",
}

// LoadRegistryConfig reads the registry settings from env. The attribute-type
// mapping is validated here so a missing identifier fails at startup-equivalent
// time instead of mid-provisioning.
func LoadRegistryConfig() (*RegistryConfig, error) {
	cfg := &RegistryConfig{
		OpenMRS: UpstreamConfig{
			BaseURL:  envOrDefault("OPENMRS_BASE_URL", "http://localhost:8080/openmrs/ws/rest/v1"),
			Username: os.Getenv("OPENMRS_USERNAME"),
			Password: os.Getenv("OPENMRS_PASSWORD"),
		},
		DHIS2: UpstreamConfig{
			BaseURL:  envOrDefault("DHIS2_BASE_URL", "http://localhost:8085/api"),
			Username: os.Getenv("DHIS2_USERNAME"),
			Password: os.Getenv("DHIS2_PASSWORD"),
		},
		OpenSRP: UpstreamConfig{
			BaseURL: envOrDefault("OPENSRP_BASE_URL", "http://localhost:8090/opensrp"),
			Token:   os.Getenv("OPENSRP_TOKEN"),
		},
		AttributeTypes: AttributeTypes{
			NIN:         os.Getenv("ATTRIBUTE_TYPE_NIN"),
			Email:       os.Getenv("ATTRIBUTE_TYPE_EMAIL"),
			PhoneNumber: os.Getenv("ATTRIBUTE_TYPE_PHONE"),
		},
		DefaultRole:         envOrDefault("DEFAULT_USER_ROLE", "Provider"),
		TeamRoleId:          os.Getenv("DEFAULT_TEAM_ROLE_ID"),
		CountryPhonePrefix:  envOrDefault("COUNTRY_PHONE_PREFIX", "+255"),
		TrunkPrefix:         envOrDefault("TRUNK_PREFIX", "0"),
		RecoveryConcurrency: intFromEnv("RECOVERY_CONCURRENCY", 5),
		SyncPageSize:        intFromEnv("SYNC_PAGE_SIZE", 500),
	}

	if words := strings.TrimSpace(os.Getenv("PASSWORD_WORDS")); words != "" {
		for _, w := range strings.Split(words, ",") {
			if w = strings.TrimSpace(w); w != "" {
				cfg.PasswordWords = append(cfg.PasswordWords, w)
			}
		}
	}
	if len(cfg.PasswordWords) == 0 {
		cfg.PasswordWords = defaultPasswordWords
	}

	var missing []string
	if cfg.AttributeTypes.NIN == "" {
		missing = append(missing, "ATTRIBUTE_TYPE_NIN")
	}
	if cfg.AttributeTypes.Email == "" {
		missing = append(missing, "ATTRIBUTE_TYPE_EMAIL")
	}
	if cfg.AttributeTypes.PhoneNumber == "" {
		missing = append(missing, "ATTRIBUTE_TYPE_PHONE")
	}
	if cfg.TeamRoleId == "" {
		missing = append(missing, "DEFAULT_TEAM_ROLE_ID")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("registry config: missing required settings: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// FieldForAttributeType returns the local field name an upstream attribute-type
// identifier maps to. Lookups are by identifier, never by display label.
func (a AttributeTypes) FieldForAttributeType(uuid string) (string, bool) {
	switch uuid {
	case a.NIN:
		return "nin", true
	case a.Email:
		return "email", true
	case a.PhoneNumber:
		return "phoneNumber", true
	}
	return "", false
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
