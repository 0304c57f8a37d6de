package registrysync

import (
	"context"
	"encoding/json"
	"fmt"

	"bitbucket.org/mohealth/registry_backend/models"
	"github.com/sirupsen/logrus"
)

// Page is one fetched slice of a remote collection. Total is the remote
// collection size when the endpoint exposes one, -1 otherwise.
type Page struct {
	Records []json.RawMessage
	Total   int
}

// PageSource fetches sequential pages from one upstream collection.
type PageSource interface {
	FetchPage(ctx context.Context, page int, pageSize int) (Page, error)
}

// Sink maps one raw remote record into local storage and returns the entity
// uuid it stored. A sink error means the record is skipped, not the run.
type Sink interface {
	Apply(ctx context.Context, raw json.RawMessage) (entityUuid string, err error)
}

// LogFunc appends one sync-log entry. Injected so engine tests stay DB-free.
type LogFunc func(ctx context.Context, entityType, entityUuid, action, status, details string) error

// Engine mirrors a remote paginated collection into local storage.
//
// Termination is dual-policy: when the source reports a total count the loop
// runs the computed page count; otherwise it stops at the first empty page.
// Different upstream endpoints expose different pagination metadata, so both
// policies must stay.
type Engine struct {
	EntityType string
	Source     PageSource
	Sink       Sink
	Logger     *logrus.Logger
	PageSize   int
	AppendLog  LogFunc
}

// Result reports what one run did. Callers needing the synced rows query
// local storage separately.
type Result struct {
	Pages   int
	Synced  int
	Skipped int
}

// Run drives the page loop. A page-fetch error aborts the whole run; a
// malformed record inside a page is skipped with a warning.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	var result Result

	pageSize := e.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	appendLog := e.AppendLog
	if appendLog == nil {
		appendLog = models.AppendSyncLog
	}

	totalPages := -1
	for page := 1; ; page++ {
		if totalPages >= 0 && page > totalPages {
			return result, nil
		}

		fetched, err := e.Source.FetchPage(ctx, page, pageSize)
		if err != nil {
			return result, fmt.Errorf("%s sync: fetch page %d: %w", e.EntityType, page, err)
		}
		result.Pages++

		if totalPages < 0 && fetched.Total >= 0 {
			totalPages = (fetched.Total + pageSize - 1) / pageSize
		}

		if e.Logger != nil {
			e.Logger.WithFields(logrus.Fields{
				"module":     "registrysync",
				"entityType": e.EntityType,
				"page":       page,
				"totalPages": totalPages,
			}).Infof("syncing %s page %d of %d", e.EntityType, page, totalPages)
		}

		if len(fetched.Records) == 0 {
			return result, nil
		}

		for _, raw := range fetched.Records {
			uuid, err := e.Sink.Apply(ctx, raw)
			if err != nil {
				result.Skipped++
				_ = appendLog(ctx, e.EntityType, "", models.SyncLogActionUpsert, models.SyncLogStatusSkipped, err.Error())
				if e.Logger != nil {
					e.Logger.WithFields(logrus.Fields{
						"module":     "registrysync",
						"entityType": e.EntityType,
						"page":       page,
					}).Warnf("skipping record: %v", err)
				}
				continue
			}
			result.Synced++
			_ = appendLog(ctx, e.EntityType, uuid, models.SyncLogActionUpsert, models.SyncLogStatusSuccess, "")
		}

		if totalPages >= 0 && page >= totalPages {
			return result, nil
		}
	}
}
