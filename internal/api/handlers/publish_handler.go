package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/clipperhq/clippost/internal/queue"
	"github.com/clipperhq/clippost/internal/repository"
)

type PublishHandler struct {
	posts   repository.PostRepository
	history repository.PublishHistoryRepository
	client  *asynq.Client
}

func NewPublishHandler(posts repository.PostRepository, history repository.PublishHistoryRepository, client *asynq.Client) *PublishHandler {
	return &PublishHandler{posts: posts, history: history, client: client}
}

type publishRequest struct {
	PostID       int64  `json:"post_id"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
}

// PublishPost enqueues a publish task for the post, immediately or at the
// requested time.
func (h *PublishHandler) PublishPost(c *fiber.Ctx) error {
	var req publishRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.PostID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "post_id is required"})
	}

	post, err := h.posts.GetByID(c.Context(), req.PostID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if post == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "post not found"})
	}
	if !post.Publishable() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "post is " + post.Status + " and cannot be published",
		})
	}

	var processAt time.Time
	if req.ScheduledFor != "" {
		processAt, err = time.Parse(time.RFC3339, req.ScheduledFor)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_for must be RFC3339"})
		}
	}

	task, opts, err := queue.NewPublishTask(req.PostID, processAt)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	info, err := h.client.Enqueue(task, opts...)
	if err != nil {
		log.Printf("enqueueing publish for post %d: %v", req.PostID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to enqueue publish"})
	}

	log.Printf("publish task %s enqueued for post %d", info.ID, req.PostID)
	return c.JSON(fiber.Map{"task_id": info.ID, "post_id": req.PostID})
}

// GetPublishHistory lists the publish attempts for a post, newest first.
func (h *PublishHandler) GetPublishHistory(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid post id"})
	}

	history, err := h.history.ListByPostID(c.Context(), int64(postID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"history": history})
}
