package middleware

import (
	"servicehub/internal/common"
	"servicehub/internal/models"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RBACMiddleware turns the guard predicates into route-level middleware. It
// only looks at the identity already resolved from the token.
type RBACMiddleware struct {
	logger *zap.Logger
}

func NewRBACMiddleware(logger *zap.Logger) *RBACMiddleware {
	return &RBACMiddleware{logger: logger}
}

func (m *RBACMiddleware) RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := common.RequireRole(Identity(c), roles...); err != nil {
				return common.RespondError(c, m.logger, err)
			}
			return next(c)
		}
	}
}

func (m *RBACMiddleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := common.RequireAdmin(Identity(c)); err != nil {
				return common.RespondError(c, m.logger, err)
			}
			return next(c)
		}
	}
}
