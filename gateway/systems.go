package gateway

import "bitbucket.org/mohealth/registry_backend/config"

const (
	SystemOpenMRS = "openmrs"
	SystemDHIS2   = "dhis2"
	SystemOpenSRP = "opensrp"
)

// NewOpenMRSClient builds the client for the OpenMRS REST API.
func NewOpenMRSClient(cfg config.UpstreamConfig) (Client, error) {
	return NewClient(SystemOpenMRS, cfg.BaseURL,
		WithBasicAuth(cfg.Username, cfg.Password),
		WithRateLimit(rateLimitFromEnv("OPENMRS_RATE_LIMIT_PER_MIN")),
	)
}

// NewDHIS2Client builds the client for the DHIS2 Web API.
func NewDHIS2Client(cfg config.UpstreamConfig) (Client, error) {
	return NewClient(SystemDHIS2, cfg.BaseURL,
		WithBasicAuth(cfg.Username, cfg.Password),
		WithRateLimit(rateLimitFromEnv("DHIS2_RATE_LIMIT_PER_MIN")),
	)
}

// NewOpenSRPClient builds the client for the OpenSRP API.
func NewOpenSRPClient(cfg config.UpstreamConfig) (Client, error) {
	return NewClient(SystemOpenSRP, cfg.BaseURL,
		WithTokenAuth("Authorization", cfg.Token),
		WithRateLimit(rateLimitFromEnv("OPENSRP_RATE_LIMIT_PER_MIN")),
	)
}
