package handlers

import (
	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/middleware"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type LeadHandler struct {
	contactService *services.ContactService
	log            *zap.Logger
}

func NewLeadHandler(contactService *services.ContactService, log *zap.Logger) *LeadHandler {
	return &LeadHandler{contactService: contactService, log: log}
}

func (h *LeadHandler) ListLeads(c *fiber.Ctx) error {
	leads, err := h.contactService.ListLeads(c.UserContext(), middleware.GetTenantID(c), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: leads})
}
