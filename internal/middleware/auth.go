package middleware

import (
	"strings"

	"github.com/ads-hunter/backend/internal/auth"
	"github.com/ads-hunter/backend/internal/config"
	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/ads-hunter/backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CtxTenantID  = "tenant_id"
	CtxUserID    = "user_id"
	CtxRole      = "role"
	// CtxFinancial holds the permission of a credit-moving request for the access log.
	CtxFinancial = "financial_op"
)

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid or expired token"})
		}
		tenantID, _ := claims.TenantID()

		role := claims.Role
		if cfg.IsAdmin(tenantID.String()) {
			role = rbac.RoleAdmin
		}

		c.Locals(CtxTenantID, tenantID)
		c.Locals(CtxUserID, claims.UserID)
		c.Locals(CtxRole, role)

		return c.Next()
	}
}

func GetTenantID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxTenantID).(uuid.UUID)
	return id
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxUserID).(uuid.UUID)
	return id
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(CtxRole).(string)
	return role
}

// RequirePermission rejects callers whose role lacks perm.
func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetRole(c), perm) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "permission denied", Code: "forbidden"})
		}
		if rbac.IsFinancialOperation(perm) {
			c.Locals(CtxFinancial, perm)
		}
		return c.Next()
	}
}
