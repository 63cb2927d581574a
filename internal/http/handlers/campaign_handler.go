package handlers

import (
	"strconv"

	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/middleware"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CampaignHandler struct {
	campaignService *services.CampaignService
	log             *zap.Logger
}

func NewCampaignHandler(campaignService *services.CampaignService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService, log: log}
}

func criteriaFrom(r dto.CriteriaRequest) models.CampaignCriteria {
	return models.CampaignCriteria{
		Category: r.Category,
		City:     r.City,
		MinPrice: r.MinPrice,
		MaxPrice: r.MaxPrice,
		Keyword:  r.Keyword,
	}
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req dto.CreateHuntRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	priority, err := models.ParseChannelList(req.ChannelPriority)
	if err != nil {
		return badRequest(c, err.Error())
	}

	campaign := &models.Campaign{
		Name:            req.Name,
		DailyLimit:      req.DailyLimit,
		ChannelPriority: priority,
		Criteria:        criteriaFrom(req.Criteria),
	}
	if err := h.campaignService.Create(c.UserContext(), middleware.GetTenantID(c), middleware.GetUserID(c), campaign); err != nil {
		return fail(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid hunt id")
	}

	campaign, err := h.campaignService.GetByID(c.UserContext(), id, middleware.GetTenantID(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	filter := repositories.CampaignFilter{Limit: 20}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}

	campaigns, err := h.campaignService.List(c.UserContext(), middleware.GetTenantID(c), filter)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaigns})
}

func (h *CampaignHandler) UpdateCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid hunt id")
	}

	var req dto.UpdateHuntRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	var priority []models.Channel
	if req.ChannelPriority != nil {
		if priority, err = models.ParseChannelList(req.ChannelPriority); err != nil {
			return badRequest(c, err.Error())
		}
	}

	updated, err := h.campaignService.Update(c.UserContext(), id, middleware.GetTenantID(c), middleware.GetUserID(c), func(m *models.Campaign) {
		if req.Name != nil {
			m.Name = *req.Name
		}
		if req.Active != nil {
			m.Active = *req.Active
		}
		if req.Status != nil {
			m.Status = *req.Status
		}
		if req.DailyLimit != nil {
			m.DailyLimit = req.DailyLimit
		}
		if req.ClearDailyLimit {
			m.DailyLimit = nil
		}
		if req.ChannelPriority != nil {
			m.ChannelPriority = priority
		}
		if req.Criteria != nil {
			m.Criteria = criteriaFrom(*req.Criteria)
		}
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *CampaignHandler) GetHistory(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid hunt id")
	}

	entries, err := h.campaignService.History(c.UserContext(), id, middleware.GetTenantID(c), c.QueryInt("limit", 50))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
