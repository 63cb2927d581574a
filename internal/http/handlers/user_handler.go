package handlers

import (
	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/middleware"
	"github.com/ads-hunter/backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type UserHandler struct {
	log *zap.Logger
}

func NewUserHandler(log *zap.Logger) *UserHandler {
	return &UserHandler{log: log}
}

type MeResponse struct {
	TenantID    string   `json:"tenant_id"`
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// GetMe echoes the caller's identity as resolved from the token.
func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	role := middleware.GetRole(c)
	perms := rbac.RolePermissions[role]
	if perms == nil {
		perms = []string{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: MeResponse{
		TenantID:    middleware.GetTenantID(c).String(),
		UserID:      middleware.GetUserID(c).String(),
		Role:        role,
		Permissions: perms,
	}})
}
