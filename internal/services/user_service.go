package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"servicehub/internal/caching"
	"servicehub/internal/common"
	"servicehub/internal/config"
	"servicehub/internal/models"
	"servicehub/internal/repositories"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/labstack/gommon/random"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"
)

const (
	// counted in characters
	minPasswordLength = 6
	// bcrypt refuses input longer than 72 bytes, so the cap is in bytes
	maxPasswordBytes = 72
)

var errInvalidCredentials = common.NewAuthError(common.Unauthenticated, "invalid email or password")

// UserService is the credential store plus the account operations built on it.
type UserService interface {
	Register(ctx context.Context, input *models.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.LoginResult, error)
	VerifyPassword(user *models.User, candidate string) bool

	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIDWithSecrets(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmailWithSecrets(ctx context.Context, email string) (*models.User, error)

	ChangePassword(ctx context.Context, caller *models.Identity, current, next string) error
	Deactivate(ctx context.Context, caller *models.Identity, userID uuid.UUID) error
	RequestEmailVerification(ctx context.Context, caller *models.Identity) (string, error)
	VerifyEmail(ctx context.Context, token string) error
	ProviderProfile(ctx context.Context, providerID uuid.UUID) (*models.ProviderProfile, error)
}

type userService struct {
	users    repositories.UserRepository
	listings repositories.ListingRepository
	tokens   TokenService
	cache    caching.CacheService
	hasher   *PasswordHasher
	security config.SecurityConfig
	logger   *zap.Logger
}

func NewUserService(
	users repositories.UserRepository,
	listings repositories.ListingRepository,
	tokens TokenService,
	cache caching.CacheService,
	security config.SecurityConfig,
	logger *zap.Logger,
) UserService {
	return &userService{
		users:    users,
		listings: listings,
		tokens:   tokens,
		cache:    cache,
		hasher:   NewPasswordHasher(security.BcryptCost),
		security: security,
		logger:   logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *userService) Register(ctx context.Context, input *models.RegisterInput) (*models.User, error) {
	if input == nil {
		return nil, common.NewValidationError("body", "is required")
	}
	in := *input
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Location = strings.TrimSpace(in.Location)
	in.ContactNumber = strings.TrimSpace(in.ContactNumber)
	in.Bio = strings.TrimSpace(in.Bio)
	if in.Role == "" {
		in.Role = models.RoleConsumer
	}

	if err := s.validateRegistration(&in); err != nil {
		return nil, err
	}

	user := &models.User{
		ID:       uuid.New(),
		Name:     in.Name,
		Email:    in.Email,
		Role:     in.Role,
		Location: in.Location,
		Bio:      in.Bio,
		IsActive: true,
	}
	if in.ContactNumber != "" {
		normalized, err := normalizePhone(in.ContactNumber, s.security.PhoneDefaultRegion)
		if err != nil {
			return nil, common.NewValidationError("contact_number", err.Error())
		}
		user.ContactNumber = &normalized
	}

	user.SetPassword(in.Password)
	if err := s.hasher.ApplyPending(user); err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

func (s *userService) validateRegistration(in *models.RegisterInput) error {
	contactRules := []validation.Rule{validation.By(phoneRule(s.security.PhoneDefaultRegion))}
	if in.Role == models.RoleProvider {
		contactRules = append([]validation.Rule{validation.Required.Error("is required for providers")}, contactRules...)
	}

	err := validation.ValidateStruct(in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(2, 50)),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, passwordRules()...),
		validation.Field(&in.Role, validation.Required, validation.In(models.RoleConsumer, models.RoleProvider)),
		validation.Field(&in.ContactNumber, contactRules...),
		validation.Field(&in.Bio, validation.RuneLength(0, 500)),
	)
	return common.FromValidation(err)
}

func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.RuneLength(minPasswordLength, 0).Error(fmt.Sprintf("must be at least %d characters", minPasswordLength)),
		validation.By(func(value interface{}) error {
			if p, _ := value.(string); len(p) > maxPasswordBytes {
				return fmt.Errorf("must be at most %d bytes", maxPasswordBytes)
			}
			return nil
		}),
	}
}

func phoneRule(region string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		_, err := normalizePhone(s, region)
		return err
	}
}

// normalizePhone parses a contact number and returns it in E.164 form.
func normalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", errors.New("must be a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Login checks the credentials and issues a fresh token pair. Failed attempts
// are counted per email; once the budget is spent further attempts are
// refused until the window expires.
func (s *userService) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, errInvalidCredentials
	}

	if failures, retryAfter, err := s.cache.LoginFailures(ctx, email); err != nil {
		s.logger.Warn("login throttle unavailable", zap.Error(err))
	} else if failures >= s.security.LoginMaxAttempts {
		if retryAfter <= 0 {
			retryAfter = s.security.LoginWindow
		}
		return nil, &common.RateLimitedError{RetryAfter: retryAfter}
	}

	user, err := s.users.GetByEmailWithSecrets(ctx, email)
	if err != nil {
		var nf *common.NotFoundError
		if errors.As(err, &nf) {
			// same bcrypt work as a wrong password, so timing does not reveal unknown emails
			s.hasher.CompareDummy(password)
			s.recordFailure(ctx, email)
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if !s.VerifyPassword(user, password) {
		s.recordFailure(ctx, email)
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, common.NewAuthError(common.Unauthenticated, "account is deactivated")
	}

	if err := s.cache.ResetLoginFailures(ctx, email); err != nil {
		s.logger.Warn("failed to reset login failures", zap.Error(err))
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID.String()))
	return &models.LoginResult{TokenPair: *pair, User: publicUser(user)}, nil
}

func (s *userService) recordFailure(ctx context.Context, email string) {
	count, err := s.cache.RecordLoginFailure(ctx, email, s.security.LoginWindow)
	if err != nil {
		s.logger.Warn("failed to record login failure", zap.Error(err))
		return
	}
	if count >= s.security.LoginMaxAttempts {
		s.logger.Warn("login attempts exhausted", zap.Int("failures", count))
	}
}

func (s *userService) VerifyPassword(user *models.User, candidate string) bool {
	if user == nil {
		return false
	}
	ok, err := s.hasher.Verify(user.PasswordHash, candidate)
	if err != nil {
		s.logger.Error("stored password hash is unusable",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (s *userService) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.users.GetByEmail(ctx, normalizeEmail(email))
}

func (s *userService) FindByIDWithSecrets(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByIDWithSecrets(ctx, id)
}

func (s *userService) FindByEmailWithSecrets(ctx context.Context, email string) (*models.User, error) {
	return s.users.GetByEmailWithSecrets(ctx, normalizeEmail(email))
}

// ChangePassword replaces the caller's password. The stored refresh token is
// dropped in the same update, so every session has to log in again.
func (s *userService) ChangePassword(ctx context.Context, caller *models.Identity, current, next string) error {
	if caller == nil {
		return common.NewAuthError(common.Unauthenticated, "authentication required")
	}
	err := validation.Validate(next, passwordRules()...)
	if err != nil {
		return common.NewValidationError("new_password", err.Error())
	}

	user, err := s.users.GetByIDWithSecrets(ctx, caller.ID)
	if err != nil {
		return err
	}
	if !s.VerifyPassword(user, current) {
		return common.NewValidationError("current_password", "is incorrect")
	}

	user.SetPassword(next)
	if err := s.hasher.ApplyPending(user); err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, user.PasswordHash); err != nil {
		return err
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID.String()))
	return nil
}

// Deactivate soft-deletes an account. Users may deactivate themselves; admins
// may deactivate anyone.
func (s *userService) Deactivate(ctx context.Context, caller *models.Identity, userID uuid.UUID) error {
	if err := common.RequireOwnerOrAdmin(caller, userID); err != nil {
		return err
	}
	if err := s.users.SetActive(ctx, userID, false); err != nil {
		return err
	}
	s.logger.Info("user deactivated",
		zap.String("user_id", userID.String()),
		zap.String("by", caller.ID.String()),
	)
	return nil
}

// RequestEmailVerification mints a one-shot verification token. Only its hash
// is stored.
func (s *userService) RequestEmailVerification(ctx context.Context, caller *models.Identity) (string, error) {
	if caller == nil {
		return "", common.NewAuthError(common.Unauthenticated, "authentication required")
	}
	user, err := s.users.GetByID(ctx, caller.ID)
	if err != nil {
		return "", err
	}
	if user.IsEmailVerified {
		return "", &common.ConflictError{Field: "email", Message: "email is already verified"}
	}

	token := random.String(48, random.Alphanumeric)
	if err := s.cache.SaveVerificationToken(ctx, hashToken(token), user.ID, s.security.EmailVerificationTTL); err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}
	return token, nil
}

func (s *userService) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return common.NewValidationError("token", "is required")
	}
	userID, ok, err := s.cache.ConsumeVerificationToken(ctx, hashToken(token))
	if err != nil {
		return fmt.Errorf("consume verification token: %w", err)
	}
	if !ok {
		return common.NewAuthError(common.InvalidToken, "verification token is invalid or has expired")
	}
	if err := s.users.MarkEmailVerified(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("email verified", zap.String("user_id", userID.String()))
	return nil
}

// ProviderProfile returns the public view of a provider. services_count is
// computed on every read.
func (s *userService) ProviderProfile(ctx context.Context, providerID uuid.UUID) (*models.ProviderProfile, error) {
	user, err := s.users.GetByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !user.IsProvider() || !user.IsActive {
		return nil, common.NewNotFoundError("provider")
	}
	count, err := s.listings.CountPublicByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return &models.ProviderProfile{
		ID:            user.ID,
		Name:          user.Name,
		Location:      user.Location,
		ContactNumber: user.ContactNumber,
		ProfileImage:  user.ProfileImage,
		Bio:           user.Bio,
		ServicesCount: count,
		CreatedAt:     user.CreatedAt,
	}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// publicUser strips the sensitive projection before a user leaves the service.
func publicUser(u *models.User) *models.User {
	out := *u
	out.PasswordHash = ""
	out.RefreshToken = nil
	out.RefreshTokenExpiresAt = nil
	out.ClearPendingPassword()
	return &out
}
