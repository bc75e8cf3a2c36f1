package handlers

import (
	"net/http"

	"servicehub/internal/common"
	"servicehub/internal/middleware"
	"servicehub/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// UserHandlers serves public provider profiles and admin account management.
type UserHandlers struct {
	users  services.UserService
	logger *zap.Logger
}

func NewUserHandlers(users services.UserService, logger *zap.Logger) *UserHandlers {
	return &UserHandlers{users: users, logger: logger}
}

// GetProvider returns a provider's public profile with the number of visible listings.
// @Summary Provider profile
// @Tags providers
// @Produce json
// @Param id path string true "provider id"
// @Success 200 {object} models.ProviderProfile
// @Failure 404 {object} common.ErrorResponse
// @Router /providers/{id} [get]
func (h *UserHandlers) GetProvider(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	profile, err := h.users.ProviderProfile(c.Request().Context(), id)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// DeactivateUser handles admin deactivation of any account
// @Summary Deactivate a user
// @Tags admin
// @Security BearerAuth
// @Param id path string true "user id"
// @Success 204
// @Failure 403 {object} common.ErrorResponse
// @Failure 404 {object} common.ErrorResponse
// @Router /admin/users/{id} [delete]
func (h *UserHandlers) DeactivateUser(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	if err := h.users.Deactivate(c.Request().Context(), middleware.Identity(c), id); err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
