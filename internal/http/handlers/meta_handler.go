package handlers

import (
	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

type MetaChannel struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	Metered        bool   `json:"metered"`
	RequiresSender bool   `json:"requires_sender"`
}

type MetaSkipReason struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var predefinedChannels = []MetaChannel{
	{ID: string(models.ChannelWhatsApp), Label: "WhatsApp", Metered: models.ChannelWhatsApp.Metered(), RequiresSender: models.ChannelWhatsApp.RequiresSender()},
	{ID: string(models.ChannelSMS), Label: "SMS", Metered: models.ChannelSMS.Metered(), RequiresSender: models.ChannelSMS.RequiresSender()},
	{ID: string(models.ChannelRinglessVoice), Label: "Ringless voicemail", Metered: models.ChannelRinglessVoice.Metered(), RequiresSender: models.ChannelRinglessVoice.RequiresSender()},
}

var predefinedSkipReasons = []MetaSkipReason{
	{ID: services.SkipPacingLimit, Label: "Daily limit reached"},
	{ID: services.SkipNoEligibleChannel, Label: "No channel with budget and a usable connection"},
	{ID: services.SkipNoMatchingAds, Label: "No new ads matched"},
	{ID: services.SkipMissingRecipient, Label: "Ad has no usable phone number"},
	{ID: services.SkipNoTemplate, Label: "No default template for the channel"},
	{ID: services.SkipAlreadyContacted, Label: "Ad owner already contacted"},
	{ID: services.SkipInsufficientCredits, Label: "Credits ran out"},
	{ID: services.SkipCampaignBusy, Label: "Hunt already running"},
}

func (h *MetaHandler) GetChannels(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: predefinedChannels})
}

func (h *MetaHandler) GetSkipReasons(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: predefinedSkipReasons})
}
