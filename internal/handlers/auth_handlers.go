package handlers

import (
	"net/http"

	"servicehub/internal/common"
	"servicehub/internal/middleware"
	"servicehub/internal/models"
	"servicehub/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	users  services.UserService
	tokens services.TokenService
	logger *zap.Logger
	// exposeVerificationToken returns the raw verification token in the
	// response body. Only enabled in development, where no mailer runs.
	exposeVerificationToken bool
}

func NewAuthHandlers(users services.UserService, tokens services.TokenService, logger *zap.Logger, exposeVerificationToken bool) *AuthHandlers {
	return &AuthHandlers{
		users:                   users,
		tokens:                  tokens,
		logger:                  logger,
		exposeVerificationToken: exposeVerificationToken,
	}
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the body of PUT /auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// Register creates a consumer or provider account.
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param body body models.RegisterInput true "registration"
// @Success 201 {object} models.User
// @Failure 400 {object} common.ErrorResponse
// @Failure 409 {object} common.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandlers) Register(c echo.Context) error {
	var req models.RegisterInput
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("body", "invalid request format"))
	}

	user, err := h.users.Register(c.Request().Context(), &req)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// Login handles user login with email and password
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "credentials"
// @Success 200 {object} models.LoginResult
// @Failure 401 {object} common.ErrorResponse
// @Failure 429 {object} common.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("body", "invalid request format"))
	}

	result, err := h.users.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Refresh exchanges a refresh token for a new token pair.
// @Summary Rotate refresh token
// @Tags auth
// @Accept json
// @Produce json
// @Param body body models.RefreshTokenRequest true "refresh token"
// @Success 200 {object} models.TokenPair
// @Failure 401 {object} common.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandlers) Refresh(c echo.Context) error {
	var req models.RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("body", "invalid request format"))
	}
	if req.RefreshToken == "" {
		return common.RespondError(c, h.logger, common.NewValidationError("refresh_token", "is required"))
	}

	pair, err := h.tokens.Rotate(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout revokes the caller's refresh token.
// @Summary Log out
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandlers) Logout(c echo.Context) error {
	identity := middleware.Identity(c)
	if identity == nil {
		return common.RespondError(c, h.logger, common.NewAuthError(common.Unauthenticated, "authentication required"))
	}
	if err := h.tokens.Revoke(c.Request().Context(), identity.ID); err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the current user.
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.User
// @Router /auth/me [get]
func (h *AuthHandlers) Me(c echo.Context) error {
	identity := middleware.Identity(c)
	if identity == nil {
		return common.RespondError(c, h.logger, common.NewAuthError(common.Unauthenticated, "authentication required"))
	}
	user, err := h.users.FindByID(c.Request().Context(), identity.ID)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteMe deactivates the caller's own account.
// @Summary Deactivate own account
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Router /auth/me [delete]
func (h *AuthHandlers) DeleteMe(c echo.Context) error {
	identity := middleware.Identity(c)
	if identity == nil {
		return common.RespondError(c, h.logger, common.NewAuthError(common.Unauthenticated, "authentication required"))
	}
	if err := h.users.Deactivate(c.Request().Context(), identity, identity.ID); err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangePassword sets a new password and ends every session.
// @Summary Change password
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Param body body ChangePasswordRequest true "passwords"
// @Success 204
// @Failure 400 {object} common.ErrorResponse
// @Router /auth/password [put]
func (h *AuthHandlers) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("body", "invalid request format"))
	}
	err := h.users.ChangePassword(c.Request().Context(), middleware.Identity(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RequestEmailVerification issues a verification token for the caller.
// @Summary Request email verification
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 202 {object} map[string]string
// @Router /auth/verify-email/request [post]
func (h *AuthHandlers) RequestEmailVerification(c echo.Context) error {
	token, err := h.users.RequestEmailVerification(c.Request().Context(), middleware.Identity(c))
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	resp := map[string]string{"message": "verification email sent"}
	if h.exposeVerificationToken {
		resp["token"] = token
	}
	return c.JSON(http.StatusAccepted, resp)
}

// VerifyEmail consumes a verification token.
// @Summary Verify email
// @Tags auth
// @Accept json
// @Param body body VerifyEmailRequest true "token"
// @Success 204
// @Failure 401 {object} common.ErrorResponse
// @Router /auth/verify-email [post]
func (h *AuthHandlers) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("body", "invalid request format"))
	}
	if err := h.users.VerifyEmail(c.Request().Context(), req.Token); err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
