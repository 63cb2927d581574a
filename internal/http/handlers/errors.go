package handlers

import (
	"errors"

	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/middleware"
	"github.com/ads-hunter/backend/internal/queue"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// fail maps service errors onto HTTP responses. Unknown errors are logged and hidden.
func fail(c *fiber.Ctx, log *zap.Logger, err error) error {
	resp := dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)}
	status := fiber.StatusInternalServerError

	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		status = fiber.StatusUnprocessableEntity
		resp.Error, resp.Code, resp.Fields = ve.Message, ve.Code, ve.Fields
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, queue.ErrJobNotFound):
		status = fiber.StatusNotFound
		resp.Error, resp.Code = "not found", "not_found"
	case errors.Is(err, repositories.ErrBudgetNotFound):
		status = fiber.StatusNotFound
		resp.Code = services.ReasonBudgetNotFound
	case errors.Is(err, services.ErrInvalidCampaign):
		status = fiber.StatusBadRequest
		resp.Code = "invalid_campaign"
	case errors.Is(err, repositories.ErrNothingToRefund):
		status = fiber.StatusConflict
		resp.Code = "nothing_to_refund"
	case errors.Is(err, services.ErrRunInProgress), errors.Is(err, services.ErrCampaignBusy):
		status = fiber.StatusConflict
		resp.Code = "in_progress"
	case errors.Is(err, services.ErrCampaignPaused):
		status = fiber.StatusConflict
		resp.Code = "campaign_paused"
	default:
		log.Error("request failed", zap.String("request_id", resp.RequestID), zap.String("path", c.Path()), zap.Error(err))
		resp.Error = "internal error"
	}
	return c.Status(status).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}
