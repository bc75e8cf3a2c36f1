package middleware

import (
	"errors"
	"strings"

	"servicehub/internal/common"
	"servicehub/internal/models"
	"servicehub/internal/services"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthMiddleware resolves the bearer access token into an identity.
type AuthMiddleware struct {
	tokens services.TokenService
	logger *zap.Logger
}

func NewAuthMiddleware(tokens services.TokenService, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, logger: logger}
}

// RequireAuth rejects requests without a valid access token with 401.
func (m *AuthMiddleware) RequireAuth() echo.MiddlewareFunc {
	return echojwt.WithConfig(m.config(nil))
}

// OptionalAuth attaches the identity when a bearer token is sent and lets
// anonymous requests through. A token that is sent but invalid is still a 401.
func (m *AuthMiddleware) OptionalAuth() echo.MiddlewareFunc {
	return echojwt.WithConfig(m.config(func(c echo.Context) bool {
		return strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization)) == ""
	}))
}

func (m *AuthMiddleware) config(skipper func(c echo.Context) bool) echojwt.Config {
	cfg := echojwt.Config{
		ContextKey:  common.EchoIdentityKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			identity, err := m.tokens.ValidateAccessToken(auth)
			if err != nil {
				return nil, err
			}
			c.SetRequest(c.Request().WithContext(common.WithIdentity(c.Request().Context(), identity)))
			return identity, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			unauth := &common.AuthError{Kind: common.Unauthenticated, Message: "authentication required", Err: err}
			var authErr *common.AuthError
			if errors.As(err, &authErr) && authErr.Kind == common.Expired {
				unauth.Message = "access token has expired"
			}
			m.logger.Debug("rejected bearer token", zap.String("path", c.Path()), zap.Error(err))
			return common.RespondError(c, m.logger, unauth)
		},
	}
	if skipper != nil {
		cfg.Skipper = skipper
	}
	return cfg
}

// Identity returns the caller attached by RequireAuth or OptionalAuth.
func Identity(c echo.Context) *models.Identity {
	if identity, ok := c.Get(common.EchoIdentityKey).(*models.Identity); ok {
		return identity
	}
	if identity, ok := common.IdentityFromContext(c.Request().Context()); ok {
		return identity
	}
	return nil
}
