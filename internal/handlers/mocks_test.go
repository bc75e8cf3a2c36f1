package handlers

import (
	"context"
	"io"
	"time"

	"servicehub/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, input *models.RegisterInput) (*models.User, error) {
	args := m.Called(ctx, input)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	args := m.Called(ctx, email, password)
	result, _ := args.Get(0).(*models.LoginResult)
	return result, args.Error(1)
}

func (m *MockUserService) VerifyPassword(user *models.User, candidate string) bool {
	return m.Called(user, candidate).Bool(0)
}

func (m *MockUserService) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) FindByIDWithSecrets(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) FindByEmailWithSecrets(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) ChangePassword(ctx context.Context, caller *models.Identity, current, next string) error {
	return m.Called(ctx, caller, current, next).Error(0)
}

func (m *MockUserService) Deactivate(ctx context.Context, caller *models.Identity, userID uuid.UUID) error {
	return m.Called(ctx, caller, userID).Error(0)
}

func (m *MockUserService) RequestEmailVerification(ctx context.Context, caller *models.Identity) (string, error) {
	args := m.Called(ctx, caller)
	return args.String(0), args.Error(1)
}

func (m *MockUserService) VerifyEmail(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockUserService) ProviderProfile(ctx context.Context, providerID uuid.UUID) (*models.ProviderProfile, error) {
	args := m.Called(ctx, providerID)
	profile, _ := args.Get(0).(*models.ProviderProfile)
	return profile, args.Error(1)
}

type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) IssueAccessToken(user *models.User) (string, time.Time, error) {
	args := m.Called(user)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenService) IssueRefreshToken(ctx context.Context, user *models.User) (string, time.Time, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenService) IssuePair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	args := m.Called(ctx, user)
	pair, _ := args.Get(0).(*models.TokenPair)
	return pair, args.Error(1)
}

func (m *MockTokenService) Rotate(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	pair, _ := args.Get(0).(*models.TokenPair)
	return pair, args.Error(1)
}

func (m *MockTokenService) Revoke(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockTokenService) ValidateAccessToken(token string) (*models.Identity, error) {
	args := m.Called(token)
	identity, _ := args.Get(0).(*models.Identity)
	return identity, args.Error(1)
}

type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) listing(args mock.Arguments) (*models.Listing, error) {
	listing, _ := args.Get(0).(*models.Listing)
	return listing, args.Error(1)
}

func (m *MockListingService) listings(args mock.Arguments) ([]*models.Listing, error) {
	listings, _ := args.Get(0).([]*models.Listing)
	return listings, args.Error(1)
}

func (m *MockListingService) Submit(ctx context.Context, caller *models.Identity, input *models.ListingInput) (*models.Listing, error) {
	return m.listing(m.Called(ctx, caller, input))
}

func (m *MockListingService) Approve(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Listing, error) {
	return m.listing(m.Called(ctx, caller, id))
}

func (m *MockListingService) Reject(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Listing, error) {
	return m.listing(m.Called(ctx, caller, id))
}

func (m *MockListingService) SetActive(ctx context.Context, caller *models.Identity, id uuid.UUID, active bool) (*models.Listing, error) {
	return m.listing(m.Called(ctx, caller, id, active))
}

func (m *MockListingService) Update(ctx context.Context, caller *models.Identity, id uuid.UUID, input *models.ListingInput) (*models.Listing, error) {
	return m.listing(m.Called(ctx, caller, id, input))
}

func (m *MockListingService) AttachImage(ctx context.Context, caller *models.Identity, id uuid.UUID, image io.Reader, size int64) (*models.Listing, error) {
	return m.listing(m.Called(ctx, caller, id, image, size))
}

func (m *MockListingService) Get(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Listing, error) {
	return m.listing(m.Called(ctx, caller, id))
}

func (m *MockListingService) ListPublic(ctx context.Context, filter *models.ListingFilter) ([]*models.Listing, error) {
	return m.listings(m.Called(ctx, filter))
}

func (m *MockListingService) ListMine(ctx context.Context, caller *models.Identity) ([]*models.Listing, error) {
	return m.listings(m.Called(ctx, caller))
}

func (m *MockListingService) ListPending(ctx context.Context, caller *models.Identity, limit, offset int) ([]*models.Listing, error) {
	return m.listings(m.Called(ctx, caller, limit, offset))
}

func (m *MockListingService) CountPending(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockListingService) Categories() []models.Category {
	return m.Called().Get(0).([]models.Category)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }
