package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
)

// JobsHandler exposes scheduler internals to operators.
type JobsHandler struct {
	sched *scheduler.Scheduler
}

// NewJobsHandler constructs handler.
func NewJobsHandler(sched *scheduler.Scheduler) *JobsHandler {
	return &JobsHandler{sched: sched}
}

// DeadLetters GET /admin/jobs/dead.
func (h *JobsHandler) DeadLetters(c *fiber.Ctx) error {
	dead := h.sched.DeadLetters()
	items := make([]dto.DeadJobResponse, 0, len(dead))
	for _, job := range dead {
		items = append(items, dto.DeadJobResponse{
			ID:           job.ID,
			JobType:      string(job.Type()),
			ScheduledFor: job.ScheduledFor,
			Attempts:     job.Attempts,
			Reason:       job.Reason,
			DiedAt:       job.DiedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Pending GET /admin/jobs/pending.
func (h *JobsHandler) Pending(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": fiber.Map{"pending": h.sched.Pending()}})
}
