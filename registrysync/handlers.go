package registrysync

import (
	"net/http"
	"strconv"

	"bitbucket.org/mohealth/registry_backend/models"
	"github.com/gin-gonic/gin"
)

// TriggerSyncHandler queues a sync run for the collection named in the path.
func TriggerSyncHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		collection := c.Param("collection")
		run, err := s.QueueRun(c.Request.Context(), collection, models.SyncTriggeredManual)
		if err != nil {
			if run == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run_id": run.ID})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID, "status": run.Status})
	}
}

// ListSyncRunsHandler returns recent sync runs, newest first.
func ListSyncRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := models.GetRecentSyncRuns(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": runs})
	}
}
