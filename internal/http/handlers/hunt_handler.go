package handlers

import (
	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/middleware"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HuntHandler struct {
	huntService *services.HuntService
	log         *zap.Logger
}

func NewHuntHandler(huntService *services.HuntService, log *zap.Logger) *HuntHandler {
	return &HuntHandler{huntService: huntService, log: log}
}

// RunDaily triggers the daily run synchronously and returns its summary.
func (h *HuntHandler) RunDaily(c *fiber.Ctx) error {
	summary, err := h.huntService.RunDaily(c.UserContext())
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: summary})
}

func (h *HuntHandler) ProcessHunt(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid hunt id")
	}

	res, err := h.huntService.ProcessCampaign(c.UserContext(), id, middleware.GetTenantID(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	if res.Status == services.ResultFailed {
		h.log.Warn("on-demand hunt failed", zap.String("campaign_id", id.String()), zap.String("error", res.Error))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:     "hunt processing failed",
			Code:      "hunt_failed",
			RequestID: middleware.GetRequestID(c),
		})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ProcessHuntResponse{
		MessagesDispatched: res.Dispatched,
		SkipReason:         res.SkipReason,
		Skipped:            res.Skipped,
	}})
}
