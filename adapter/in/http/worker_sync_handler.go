package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"complaint_server/core/domain"
	"complaint_server/pkg/apperr"
	"complaint_server/pkg/response"
)

// Syncer triggers pipeline batches.
type Syncer interface {
	RunOnce(ctx context.Context) (*domain.BatchSummary, error)
	Last() *domain.BatchSummary
}

// SyncHandler exposes manual batch runs.
type SyncHandler struct {
	syncer Syncer
}

func NewSyncHandler(syncer Syncer) *SyncHandler {
	return &SyncHandler{syncer: syncer}
}

func (h *SyncHandler) Register(router fiber.Router) {
	router.Post("/sync", h.Run)
	router.Get("/sync/last", h.LastRun)
}

// Run executes one batch and returns its summary. A failed fetch still
// returns the partial summary alongside the error code.
func (h *SyncHandler) Run(c *fiber.Ctx) error {
	summary, err := h.syncer.RunOnce(c.UserContext())
	if err != nil {
		if summary == nil {
			return err
		}
		appErr := apperr.AsAppError(err)
		return c.Status(appErr.Status).JSON(response.Response{
			Success: false,
			Data:    summary,
			Error:   &response.ErrorInfo{Code: appErr.Code, Message: appErr.Message},
		})
	}
	return response.OK(c, summary)
}

func (h *SyncHandler) LastRun(c *fiber.Ctx) error {
	last := h.syncer.Last()
	if last == nil {
		return apperr.NotFound("sync run")
	}
	return response.OK(c, last)
}
