package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"servicehub/internal/common"
	"servicehub/internal/config"
	"servicehub/internal/models"
	"servicehub/internal/repositories"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenService issues and validates access and refresh tokens. Access tokens
// are stateless; the refresh token is persisted on the user so only the most
// recently issued one is accepted.
type TokenService interface {
	IssueAccessToken(user *models.User) (string, time.Time, error)
	IssueRefreshToken(ctx context.Context, user *models.User) (string, time.Time, error)
	IssuePair(ctx context.Context, user *models.User) (*models.TokenPair, error)
	Rotate(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Revoke(ctx context.Context, userID uuid.UUID) error
	ValidateAccessToken(token string) (*models.Identity, error)
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UserID  string      `json:"uid"`
	Email   string      `json:"email"`
	Name    string      `json:"name"`
	Role    models.Role `json:"role"`
	IsAdmin bool        `json:"is_admin"`
	jwt.RegisteredClaims
}

// RefreshClaims carries the user id only.
type RefreshClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

type tokenService struct {
	users         repositories.UserRepository
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
	logger        *zap.Logger
}

type TokenOption func(*tokenService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *tokenService) { s.now = now }
}

func NewTokenService(users repositories.UserRepository, cfg config.TokenConfig, logger *zap.Logger, opts ...TokenOption) TokenService {
	s := &tokenService{
		users:         users,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *tokenService) IssueAccessToken(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	claims := AccessClaims{
		UserID:  user.ID.String(),
		Email:   user.Email,
		Name:    user.Name,
		Role:    user.Role,
		IsAdmin: user.IsAdmin,

		RegisteredClaims: s.registered(user.ID, now, expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueRefreshToken signs a new refresh token and persists its hash, replacing
// any previously issued one. The raw token is only ever held by the client.
func (s *tokenService) IssueRefreshToken(ctx context.Context, user *models.User) (string, time.Time, error) {
	signed, expiresAt, err := s.signRefresh(user.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, hashToken(signed), expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *tokenService) IssuePair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.pair(access, accessExp, refresh, refreshExp), nil
}

// Rotate exchanges a refresh token for a new pair. The swap only succeeds if
// the presented token is still the persisted one, so of two concurrent
// rotations with the same token exactly one wins.
func (s *tokenService) Rotate(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims := &RefreshClaims{}
	if _, err := jwt.ParseWithClaims(refreshToken, claims, s.keyFunc(s.refreshSecret), s.parserOptions()...); err != nil {
		return nil, classifyTokenError(err)
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, &common.AuthError{Kind: common.InvalidToken, Message: "invalid token subject", Err: err}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		var nf *common.NotFoundError
		if errors.As(err, &nf) {
			return nil, common.NewAuthError(common.Revoked, "refresh token has been revoked")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, common.NewAuthError(common.Revoked, "refresh token has been revoked")
	}

	next, nextExp, err := s.signRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	swapped, err := s.users.SwapRefreshToken(ctx, user.ID, hashToken(refreshToken), hashToken(next), nextExp)
	if err != nil {
		return nil, err
	}
	if !swapped {
		s.logger.Warn("stale refresh token presented", zap.String("user_id", user.ID.String()))
		return nil, common.NewAuthError(common.Revoked, "refresh token has been revoked")
	}

	access, accessExp, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	return s.pair(access, accessExp, next, nextExp), nil
}

func (s *tokenService) Revoke(ctx context.Context, userID uuid.UUID) error {
	return s.users.ClearRefreshToken(ctx, userID)
}

func (s *tokenService) ValidateAccessToken(token string) (*models.Identity, error) {
	claims := &AccessClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, s.keyFunc(s.accessSecret), s.parserOptions()...); err != nil {
		return nil, classifyTokenError(err)
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, &common.AuthError{Kind: common.InvalidToken, Message: "invalid token subject", Err: err}
	}
	return &models.Identity{
		ID:      id,
		Email:   claims.Email,
		Name:    claims.Name,
		Role:    claims.Role,
		IsAdmin: claims.IsAdmin,
	}, nil
}

func (s *tokenService) signRefresh(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.refreshTTL)
	claims := RefreshClaims{
		UserID:           userID.String(),
		RegisteredClaims: s.registered(userID, now, expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *tokenService) registered(userID uuid.UUID, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID.String(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (s *tokenService) pair(access string, accessExp time.Time, refresh string, refreshExp time.Time) *models.TokenPair {
	return &models.TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		TokenType:             "Bearer",
		ExpiresIn:             int(s.accessTTL.Seconds()),
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
	}
}

func (s *tokenService) keyFunc(secret []byte) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}
}

func (s *tokenService) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	return opts
}

func classifyTokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return &common.AuthError{Kind: common.Expired, Message: "token has expired", Err: err}
	}
	return &common.AuthError{Kind: common.InvalidToken, Message: "invalid token", Err: err}
}
