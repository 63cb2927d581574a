package handlers

import (
	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/middleware"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SendHandler struct {
	dispatch *services.DispatchService
	log      *zap.Logger
}

func NewSendHandler(dispatch *services.DispatchService, log *zap.Logger) *SendHandler {
	return &SendHandler{dispatch: dispatch, log: log}
}

// ManualSend validates and enqueues one operator-initiated message. 202 on success.
func (h *SendHandler) ManualSend(c *fiber.Ctx) error {
	var req dto.ManualSendRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Get("Idempotency-Key")
	}

	res, err := h.dispatch.ManualSend(c.UserContext(), services.ManualSend{
		TenantID:       middleware.GetTenantID(c),
		Channel:        req.Channel,
		RecipientPhone: req.RecipientPhone,
		Message:        req.Message,
		TemplateID:     req.TemplateID,
		Vars:           req.Vars,
		CampaignID:     req.CampaignID,
		AdID:           req.AdID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *SendHandler) JobStatus(c *fiber.Ctx) error {
	ch, err := models.ParseChannel(c.Params("channel"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	st, err := h.dispatch.JobStatus(c.UserContext(), middleware.GetTenantID(c), ch, c.Params("id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: st})
}
