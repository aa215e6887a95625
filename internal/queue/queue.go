package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clipperhq/clippost/internal/publisher"
)

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}

type Queue struct {
	pub *publisher.Publisher
}

func NewQueue(pub *publisher.Publisher) *Queue {
	return &Queue{pub: pub}
}

// NewPublishTask builds the asynq task for one post. processAt zero means
// enqueue for immediate processing.
func NewPublishTask(postID int64, processAt time.Time) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(PublishPostPayload{PostID: postID})
	if err != nil {
		return nil, nil, err
	}

	opts := []asynq.Option{asynq.MaxRetry(3), asynq.Timeout(15 * time.Minute)}
	if !processAt.IsZero() {
		opts = append(opts, asynq.ProcessAt(processAt))
	}

	return asynq.NewTask(TaskTypePublishPost, payload), opts, nil
}
