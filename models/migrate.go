package models

import (
	"bitbucket.org/mohealth/registry_backend/config"
)

// MigrateTable runs AutoMigrate for every registry table. Called on startup
// unless SKIP_MIGRATIONS=true.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&TeamMember{},
		&Location{},
		&OrgUnit{},
		&SyncLog{},
		&RegistrySyncRun{},
		&RecoveryAccount{},
	)
	if err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "MigrateTable", "auto migrate failed", nil, err)
	}
}
