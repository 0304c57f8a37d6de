package registrysync

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
	"bitbucket.org/mohealth/registry_backend/gateway"
	"bitbucket.org/mohealth/registry_backend/models"
	"github.com/sirupsen/logrus"
)

const (
	CollectionTeamMembers   = "teammembers"
	CollectionLocations     = "locations"
	CollectionOrgUnits      = "orgunits"
	CollectionPractitioners = "practitioners"
)

// Service wires the upstream clients and configuration into runnable
// collection syncs. Clients are injected so tests can substitute doubles.
type Service struct {
	Cfg     *config.RegistryConfig
	OpenMRS gateway.Client
	DHIS2   gateway.Client
	OpenSRP gateway.Client
	Logger  *logrus.Logger
}

func NewService(cfg *config.RegistryConfig, logger *logrus.Logger) (*Service, error) {
	openmrs, err := gateway.NewOpenMRSClient(cfg.OpenMRS)
	if err != nil {
		return nil, err
	}
	dhis2, err := gateway.NewDHIS2Client(cfg.DHIS2)
	if err != nil {
		return nil, err
	}
	opensrp, err := gateway.NewOpenSRPClient(cfg.OpenSRP)
	if err != nil {
		return nil, err
	}
	return &Service{
		Cfg:     cfg,
		OpenMRS: openmrs,
		DHIS2:   dhis2,
		OpenSRP: opensrp,
		Logger:  logger,
	}, nil
}

func (s *Service) engineFor(collection string) (*Engine, error) {
	switch collection {
	case CollectionTeamMembers:
		return &Engine{
			EntityType: "teamMember",
			Source:     NewOpenMRSSource(s.OpenMRS, "/team/teammember", "full"),
			Sink:       NewTeamMemberSink(s.Cfg.AttributeTypes),
			Logger:     s.Logger,
			PageSize:   s.Cfg.SyncPageSize,
		}, nil
	case CollectionLocations:
		return &Engine{
			EntityType: "location",
			Source:     NewOpenMRSSource(s.OpenMRS, "/location", "default"),
			Sink:       NewLocationSink(),
			Logger:     s.Logger,
			PageSize:   s.Cfg.SyncPageSize,
		}, nil
	case CollectionOrgUnits:
		return &Engine{
			EntityType: "orgUnit",
			Source:     NewDHIS2Source(s.DHIS2, "/organisationUnits", "organisationUnits", "id,name,code,level,path,openingDate,parent[id]"),
			Sink:       NewOrgUnitSink(),
			Logger:     s.Logger,
			PageSize:   s.Cfg.SyncPageSize,
		}, nil
	case CollectionPractitioners:
		return &Engine{
			EntityType: "practitioner",
			Source:     NewOpenMRSSource(s.OpenSRP, "/rest/practitioner", ""),
			Sink:       NewPractitionerSink(),
			Logger:     s.Logger,
			PageSize:   s.Cfg.SyncPageSize,
		}, nil
	}
	return nil, fmt.Errorf("unknown sync collection %q", collection)
}

// QueueRun creates a queued sync-run row and publishes it for async
// execution. When publishing fails the run is executed inline so a broken
// broker never strands a manual trigger.
func (s *Service) QueueRun(ctx context.Context, collection string, triggeredBy string) (*models.RegistrySyncRun, error) {
	if _, err := s.engineFor(collection); err != nil {
		return nil, err
	}

	run, err := models.CreateSyncRun(ctx, collection, triggeredBy)
	if err != nil {
		return nil, err
	}

	if err := PublishSyncRun(ctx, run.ID, collection); err != nil {
		config.LogError(s.Logger, "registrysync", "QueueRun", "publish failed, running inline", run.ID, err)
		if procErr := s.ProcessRun(ctx, run.ID); procErr != nil {
			return run, procErr
		}
	}
	return run, nil
}

// ProcessRun executes one queued sync run. Terminal runs are skipped so
// duplicate deliveries are harmless.
func (s *Service) ProcessRun(ctx context.Context, runId uint) error {
	run, err := models.GetSyncRunById(ctx, runId)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("sync run %d not found", runId)
	}
	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed {
		return nil
	}

	engine, err := s.engineFor(run.Collection)
	if err != nil {
		return err
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	if err := models.UpdateSyncRun(ctx, run.ID, map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}); err != nil {
		return err
	}

	result, runErr := engine.Run(ctx)

	finishedAt := time.Now()
	updates := map[string]interface{}{
		"status":          models.SyncRunStatusSuccess,
		"pages_fetched":   result.Pages,
		"records_synced":  result.Synced,
		"records_skipped": result.Skipped,
		"finished_at":     finishedAt,
		"duration_ms":     finishedAt.Sub(*startedAt).Milliseconds(),
	}
	if runErr != nil {
		updates["status"] = models.SyncRunStatusFailed
		updates["last_error"] = runErr.Error()
	}
	if err := models.UpdateSyncRun(ctx, run.ID, updates); err != nil {
		return err
	}
	return runErr
}
