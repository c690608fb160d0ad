package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/salemap/saled/internal/jobs"
)

// Reconciler runs one status sweep on demand.
type Reconciler interface {
	Trigger(ctx context.Context) (jobs.RunReport, error)
}

// JobsHandler lets an external scheduler drive the reconciliation job.
type JobsHandler struct {
	logger     *zap.Logger
	reconciler Reconciler
}

func NewJobsHandler(logger *zap.Logger, reconciler Reconciler) *JobsHandler {
	return &JobsHandler{logger: logger, reconciler: reconciler}
}

func (h *JobsHandler) Reconcile(c *fiber.Ctx) error {
	report, err := h.reconciler.Trigger(c.Context())
	switch {
	case err == nil:
		return c.JSON(report)
	case errors.Is(err, jobs.ErrRunInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		h.logger.Warn("api.reconcile.failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  err.Error(),
			"report": report,
		})
	}
}
