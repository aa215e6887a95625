package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/clipperhq/clippost/internal/platform"
)

// HandlePublishPostTask runs one queued publish through the orchestrator.
// Only retryable failures bubble up to asynq; definitive ones are already
// persisted on the post and must not re-run.
func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	result := q.pub.Publish(ctx, payload.PostID)
	if result.Success {
		return nil
	}

	log.Printf("publish task for post %d failed: %s", payload.PostID, result.Error)

	// Poll exhaustion is the one failure worth another queue attempt; the
	// remote job may simply have needed more time.
	if strings.Contains(result.Error, platform.ErrTimeout.Error()) {
		return errors.New(result.Error)
	}

	return nil
}
