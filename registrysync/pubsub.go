package registrysync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"bitbucket.org/mohealth/registry_backend/config"
	"github.com/gin-gonic/gin"
)

type SyncPubSubPayload struct {
	RunId      uint   `json:"run_id"`
	Collection string `json:"collection"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func syncTopicName() string {
	topicName := strings.TrimSpace(os.Getenv("REGISTRY_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "registry-sync"
	}
	return topicName
}

func PublishSyncRun(ctx context.Context, runId uint, collection string) error {
	payload := SyncPubSubPayload{RunId: runId, Collection: collection}
	_, err := config.PublishJSON(ctx, syncTopicName(), payload)
	return err
}

// PubSubPushHandler consumes the push subscription. It always acks (204):
// run rows record failures, and terminal runs are skipped on redelivery.
func PubSubPushHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 {
			c.Status(204)
			return
		}

		if err := s.ProcessRun(c.Request.Context(), payload.RunId); err != nil {
			config.LogError(s.Logger, "registrysync", "PubSubPushHandler", "process run failed", payload.RunId, err)
		}
		c.Status(204)
	}
}
