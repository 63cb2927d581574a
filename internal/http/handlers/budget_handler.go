package handlers

import (
	"context"
	"errors"

	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/middleware"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/rbac"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CampaignLookup resolves the owner of a campaign for platform admins.
type CampaignLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
}

type BudgetHandler struct {
	ledger    *services.LedgerService
	campaigns CampaignLookup
	log       *zap.Logger
}

func NewBudgetHandler(ledger *services.LedgerService, campaigns CampaignLookup, log *zap.Logger) *BudgetHandler {
	return &BudgetHandler{ledger: ledger, campaigns: campaigns, log: log}
}

// budgetKey reads :id and :channel with the tenant from the token.
func budgetKey(c *fiber.Ctx) (models.BudgetKey, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return models.BudgetKey{}, err
	}
	ch, err := models.ParseChannel(c.Params("channel"))
	if err != nil {
		return models.BudgetKey{}, err
	}
	return models.BudgetKey{TenantID: middleware.GetTenantID(c), CampaignID: id, Channel: ch}, nil
}

// ownerTenant is the caller's tenant, except for platform admins, who act on
// the tenant that owns the campaign. An unknown campaign keeps the caller's tenant
// so the ledger answers budget_not_found.
func (h *BudgetHandler) ownerTenant(c *fiber.Ctx, campaignID uuid.UUID) (uuid.UUID, error) {
	tenantID := middleware.GetTenantID(c)
	if middleware.GetRole(c) != rbac.RoleAdmin {
		return tenantID, nil
	}
	camp, err := h.campaigns.GetByID(c.UserContext(), campaignID)
	if errors.Is(err, repositories.ErrNotFound) {
		return tenantID, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return camp.TenantID, nil
}

func (h *BudgetHandler) ListBudgets(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid hunt id")
	}

	tenantID, err := h.ownerTenant(c, id)
	if err != nil {
		return fail(c, h.log, err)
	}
	budgets, err := h.ledger.Budgets(c.UserContext(), tenantID, id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: budgets})
}

func (h *BudgetHandler) Grant(c *fiber.Ctx) error {
	key, err := budgetKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if !key.Channel.Metered() {
		return badRequest(c, "channel "+string(key.Channel)+" is not metered")
	}

	var req dto.GrantCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.Amount <= 0 {
		return badRequest(c, "amount must be positive")
	}

	b, err := h.ledger.Grant(c.UserContext(), middleware.GetUserID(c), key, req.Amount)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: b})
}

func (h *BudgetHandler) Refund(c *fiber.Ctx) error {
	key, err := budgetKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if key.TenantID, err = h.ownerTenant(c, key.CampaignID); err != nil {
		return fail(c, h.log, err)
	}

	var req dto.RefundCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.Reference == "" {
		return badRequest(c, "reference is required")
	}

	tx, err := h.ledger.Refund(c.UserContext(), middleware.GetUserID(c), key, req.Reference, req.Reason)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: tx})
}

func (h *BudgetHandler) Reconcile(c *fiber.Ctx) error {
	key, err := budgetKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if key.TenantID, err = h.ownerTenant(c, key.CampaignID); err != nil {
		return fail(c, h.log, err)
	}

	rec, err := h.ledger.Reconcile(c.UserContext(), key)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: rec})
}
