package handlers

import (
	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/middleware"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChannelHandler manages a tenant's provider connections. Credentials are write-only.
type ChannelHandler struct {
	settingsService *services.SettingsService
	log             *zap.Logger
}

func NewChannelHandler(settingsService *services.SettingsService, log *zap.Logger) *ChannelHandler {
	return &ChannelHandler{settingsService: settingsService, log: log}
}

func settingsResponse(s *models.TenantChannelSettings) dto.ChannelSettingsResponse {
	return dto.ChannelSettingsResponse{
		Channel:        string(s.Channel),
		SenderIdentity: s.SenderIdentity,
		Enabled:        s.Enabled,
		HasCredentials: len(s.SealedCredentials) > 0,
		Usable:         s.Usable() && len(s.SealedCredentials) > 0,
	}
}

func (h *ChannelHandler) ListSettings(c *fiber.Ctx) error {
	list, err := h.settingsService.List(c.UserContext(), middleware.GetTenantID(c))
	if err != nil {
		return fail(c, h.log, err)
	}

	out := make([]dto.ChannelSettingsResponse, 0, len(list))
	for i := range list {
		out = append(out, settingsResponse(&list[i]))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

func (h *ChannelHandler) UpdateSettings(c *fiber.Ctx) error {
	ch, err := models.ParseChannel(c.Params("channel"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req dto.ChannelSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	s, err := h.settingsService.Update(c.UserContext(), middleware.GetTenantID(c), middleware.GetUserID(c), ch, services.SettingsUpdate{
		SenderIdentity: req.SenderIdentity,
		Credentials:    req.Credentials,
		Enabled:        req.Enabled,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: settingsResponse(s)})
}
