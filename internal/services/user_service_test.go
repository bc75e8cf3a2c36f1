package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"servicehub/internal/common"
	"servicehub/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

type UserServiceTestSuite struct {
	suite.Suite
	env *testEnv
	ctx context.Context
}

func (suite *UserServiceTestSuite) SetupTest() {
	suite.env = newTestEnv()
	suite.ctx = context.Background()
}

func TestUserServiceTestSuite(t *testing.T) {
	suite.Run(t, new(UserServiceTestSuite))
}

func (suite *UserServiceTestSuite) register(input *models.RegisterInput) (*models.User, error) {
	return suite.env.userSvc.Register(suite.ctx, input)
}

func validationFields(err error) map[string]string {
	var ve *common.ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

func (suite *UserServiceTestSuite) TestRegister_HashesPassword() {
	user, err := suite.register(&models.RegisterInput{
		Name:     "Ravi",
		Email:    "  Ravi@Example.com ",
		Password: "hunter22",
	})
	suite.Require().NoError(err)

	suite.Equal("ravi@example.com", user.Email)
	suite.Equal(models.RoleConsumer, user.Role)
	suite.True(user.IsActive)
	suite.NotEqual("hunter22", user.PasswordHash)
	suite.True(suite.env.userSvc.VerifyPassword(user, "hunter22"))
	suite.False(suite.env.userSvc.VerifyPassword(user, "hunter23"))

	_, pending := user.PendingPassword()
	suite.False(pending)
}

func (suite *UserServiceTestSuite) TestRegister_ProviderContactNumber() {
	_, err := suite.register(&models.RegisterInput{
		Name:     "Pooja",
		Email:    "pooja@example.com",
		Password: "secret123",
		Role:     models.RoleProvider,
	})
	suite.Contains(validationFields(err), "contact_number")

	user, err := suite.register(&models.RegisterInput{
		Name:          "Pooja",
		Email:         "pooja@example.com",
		Password:      "secret123",
		Role:          models.RoleProvider,
		ContactNumber: "+91 81234 56789",
	})
	suite.Require().NoError(err)
	suite.Require().NotNil(user.ContactNumber)
	suite.Equal("+918123456789", *user.ContactNumber)
}

func (suite *UserServiceTestSuite) TestRegister_ValidationErrors() {
	tests := []struct {
		name  string
		input models.RegisterInput
		field string
	}{
		{"malformed email", models.RegisterInput{Name: "Amit", Email: "not-an-email", Password: "secret123"}, "email"},
		{"short password", models.RegisterInput{Name: "Amit", Email: "amit@example.com", Password: "12345"}, "password"},
		{"three multibyte characters", models.RegisterInput{Name: "Amit", Email: "amit@example.com", Password: "ééé"}, "password"},
		{"password over 72 bytes", models.RegisterInput{Name: "Amit", Email: "amit@example.com", Password: strings.Repeat("a", 73)}, "password"},
		{"short name", models.RegisterInput{Name: "A", Email: "amit@example.com", Password: "secret123"}, "name"},
		{"unknown role", models.RegisterInput{Name: "Amit", Email: "amit@example.com", Password: "secret123", Role: "admin"}, "role"},
		{"bad contact", models.RegisterInput{Name: "Amit", Email: "amit@example.com", Password: "secret123", Role: models.RoleProvider, ContactNumber: "12"}, "contact_number"},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			input := tt.input
			user, err := suite.register(&input)
			suite.Nil(user)
			suite.Contains(validationFields(err), tt.field)
		})
	}
}

func (suite *UserServiceTestSuite) TestRegister_PasswordLengthCountsCharacters() {
	user, err := suite.register(&models.RegisterInput{Name: "Élodie", Email: "elodie@example.com", Password: "éééééé"})
	suite.Require().NoError(err)
	suite.True(suite.env.userSvc.VerifyPassword(user, "éééééé"))

	_, err = suite.register(&models.RegisterInput{Name: "Arjun", Email: "arjun@example.com", Password: strings.Repeat("a", 72)})
	suite.NoError(err)
}

func (suite *UserServiceTestSuite) TestRegister_DuplicateEmail() {
	_, err := suite.register(&models.RegisterInput{Name: "Meera", Email: "meera@example.com", Password: "secret123"})
	suite.Require().NoError(err)

	_, err = suite.register(&models.RegisterInput{Name: "Meera", Email: "MEERA@example.com", Password: "secret456"})
	var conflict *common.ConflictError
	suite.ErrorAs(err, &conflict)
}

func (suite *UserServiceTestSuite) TestFindByEmail_ExcludesSecrets() {
	_, err := suite.register(&models.RegisterInput{Name: "Kiran", Email: "kiran@example.com", Password: "secret123"})
	suite.Require().NoError(err)
	_, err = suite.env.userSvc.Login(suite.ctx, "kiran@example.com", "secret123")
	suite.Require().NoError(err)

	user, err := suite.env.userSvc.FindByEmail(suite.ctx, "Kiran@example.com")
	suite.Require().NoError(err)
	suite.Empty(user.PasswordHash)
	suite.Nil(user.RefreshToken)

	secret, err := suite.env.userSvc.FindByEmailWithSecrets(suite.ctx, "kiran@example.com")
	suite.Require().NoError(err)
	suite.NotEmpty(secret.PasswordHash)
	suite.NotNil(secret.RefreshToken)
}

func (suite *UserServiceTestSuite) TestLogin_Success() {
	registered, err := suite.register(&models.RegisterInput{Name: "Nisha", Email: "nisha@example.com", Password: "secret123"})
	suite.Require().NoError(err)

	result, err := suite.env.userSvc.Login(suite.ctx, "nisha@example.com", "secret123")
	suite.Require().NoError(err)
	suite.Equal(registered.ID, result.User.ID)
	suite.Empty(result.User.PasswordHash)
	suite.Equal(86400, result.ExpiresIn)
	suite.Equal(hashToken(result.RefreshToken), suite.env.users.storedRefreshToken(registered.ID))

	identity, err := suite.env.tokens.ValidateAccessToken(result.AccessToken)
	suite.Require().NoError(err)
	suite.Equal(registered.ID, identity.ID)
}

func (suite *UserServiceTestSuite) TestLogin_WrongPasswordAndUnknownEmail() {
	_, err := suite.register(&models.RegisterInput{Name: "Nisha", Email: "nisha@example.com", Password: "secret123"})
	suite.Require().NoError(err)

	_, err = suite.env.userSvc.Login(suite.ctx, "nisha@example.com", "wrong-pass")
	suite.True(common.IsAuthError(err, common.Unauthenticated))

	_, err = suite.env.userSvc.Login(suite.ctx, "nobody@example.com", "secret123")
	suite.True(common.IsAuthError(err, common.Unauthenticated))
	suite.Equal(err.Error(), errInvalidCredentials.Error())
	// unknown emails still pay for a bcrypt comparison
	suite.NotEmpty(suite.env.userSvc.(*userService).hasher.dummy)
}

func (suite *UserServiceTestSuite) TestLogin_ThrottledAfterRepeatedFailures() {
	_, err := suite.register(&models.RegisterInput{Name: "Vikram", Email: "vikram@example.com", Password: "secret123"})
	suite.Require().NoError(err)

	for i := 0; i < 5; i++ {
		_, err = suite.env.userSvc.Login(suite.ctx, "vikram@example.com", "nope-nope")
		suite.True(common.IsAuthError(err, common.Unauthenticated))
	}

	_, err = suite.env.userSvc.Login(suite.ctx, "vikram@example.com", "secret123")
	var limited *common.RateLimitedError
	suite.Require().ErrorAs(err, &limited)
	suite.Positive(limited.RetryAfter)
}

func (suite *UserServiceTestSuite) TestLogin_SuccessResetsFailures() {
	_, err := suite.register(&models.RegisterInput{Name: "Vikram", Email: "vikram@example.com", Password: "secret123"})
	suite.Require().NoError(err)

	for i := 0; i < 4; i++ {
		_, _ = suite.env.userSvc.Login(suite.ctx, "vikram@example.com", "nope-nope")
	}
	_, err = suite.env.userSvc.Login(suite.ctx, "vikram@example.com", "secret123")
	suite.Require().NoError(err)

	failures, _, _ := suite.env.cache.LoginFailures(suite.ctx, "vikram@example.com")
	suite.Zero(failures)
}

func (suite *UserServiceTestSuite) TestLogin_DeactivatedUserRefused() {
	user, err := suite.register(&models.RegisterInput{Name: "Sana", Email: "sana@example.com", Password: "secret123"})
	suite.Require().NoError(err)

	self := user.Identity()
	suite.Require().NoError(suite.env.userSvc.Deactivate(suite.ctx, &self, user.ID))

	_, err = suite.env.userSvc.Login(suite.ctx, "sana@example.com", "secret123")
	suite.True(common.IsAuthError(err, common.Unauthenticated))
}

func (suite *UserServiceTestSuite) TestDeactivate_OnlySelfOrAdmin() {
	target, err := suite.register(&models.RegisterInput{Name: "Tara", Email: "tara@example.com", Password: "secret123"})
	suite.Require().NoError(err)

	stranger := &models.Identity{ID: uuid.New(), Role: models.RoleConsumer}
	err = suite.env.userSvc.Deactivate(suite.ctx, stranger, target.ID)
	suite.True(common.IsAuthError(err, common.Forbidden))

	admin := &models.Identity{ID: uuid.New(), Role: models.RoleConsumer, IsAdmin: true}
	suite.NoError(suite.env.userSvc.Deactivate(suite.ctx, admin, target.ID))

	user, err := suite.env.userSvc.FindByID(suite.ctx, target.ID)
	suite.Require().NoError(err)
	suite.False(user.IsActive)
}

func (suite *UserServiceTestSuite) TestChangePassword_RevokesRefreshToken() {
	user, err := suite.register(&models.RegisterInput{Name: "Uma", Email: "uma@example.com", Password: "secret123"})
	suite.Require().NoError(err)
	login, err := suite.env.userSvc.Login(suite.ctx, "uma@example.com", "secret123")
	suite.Require().NoError(err)

	caller := user.Identity()
	err = suite.env.userSvc.ChangePassword(suite.ctx, &caller, "wrong", "newsecret1")
	suite.Contains(validationFields(err), "current_password")

	err = suite.env.userSvc.ChangePassword(suite.ctx, &caller, "secret123", "123")
	suite.Contains(validationFields(err), "new_password")
	err = suite.env.userSvc.ChangePassword(suite.ctx, &caller, "secret123", "ééé")
	suite.Contains(validationFields(err), "new_password")
	err = suite.env.userSvc.ChangePassword(suite.ctx, &caller, "secret123", strings.Repeat("é", 37))
	suite.Contains(validationFields(err), "new_password")

	suite.Require().NoError(suite.env.userSvc.ChangePassword(suite.ctx, &caller, "secret123", "newsecret1"))

	_, err = suite.env.tokens.Rotate(suite.ctx, login.RefreshToken)
	suite.True(common.IsAuthError(err, common.Revoked))

	_, err = suite.env.userSvc.Login(suite.ctx, "uma@example.com", "secret123")
	suite.Error(err)
	_, err = suite.env.userSvc.Login(suite.ctx, "uma@example.com", "newsecret1")
	suite.NoError(err)
}

func (suite *UserServiceTestSuite) TestEmailVerification_OneShot() {
	user, err := suite.register(&models.RegisterInput{Name: "Zoya", Email: "zoya@example.com", Password: "secret123"})
	suite.Require().NoError(err)
	caller := user.Identity()

	token, err := suite.env.userSvc.RequestEmailVerification(suite.ctx, &caller)
	suite.Require().NoError(err)
	suite.Len(token, 48)

	suite.Require().NoError(suite.env.userSvc.VerifyEmail(suite.ctx, token))
	verified, err := suite.env.userSvc.FindByID(suite.ctx, user.ID)
	suite.Require().NoError(err)
	suite.True(verified.IsEmailVerified)

	err = suite.env.userSvc.VerifyEmail(suite.ctx, token)
	suite.True(common.IsAuthError(err, common.InvalidToken))

	_, err = suite.env.userSvc.RequestEmailVerification(suite.ctx, &caller)
	var conflict *common.ConflictError
	suite.ErrorAs(err, &conflict)
}

func (suite *UserServiceTestSuite) TestProviderProfile_CountsPublicListings() {
	provider, err := suite.register(&models.RegisterInput{
		Name:          "Farah",
		Email:         "farah@example.com",
		Password:      "secret123",
		Role:          models.RoleProvider,
		ContactNumber: "8123456789",
	})
	suite.Require().NoError(err)

	for i, flags := range [][2]bool{{true, true}, {true, false}, {false, true}, {true, true}} {
		l := &models.Listing{
			ID:         uuid.New(),
			ProviderID: provider.ID,
			Title:      "Listing",
			Category:   models.CategoryTutor,
			Price:      float64(i),
			IsApproved: flags[0],
			IsActive:   flags[1],
		}
		suite.Require().NoError(suite.env.listings.Create(suite.ctx, l))
	}

	profile, err := suite.env.userSvc.ProviderProfile(suite.ctx, provider.ID)
	suite.Require().NoError(err)
	suite.Equal(2, profile.ServicesCount)
	suite.Equal("Farah", profile.Name)

	consumer, err := suite.register(&models.RegisterInput{Name: "Gita", Email: "gita@example.com", Password: "secret123"})
	suite.Require().NoError(err)
	_, err = suite.env.userSvc.ProviderProfile(suite.ctx, consumer.ID)
	var nf *common.NotFoundError
	suite.ErrorAs(err, &nf)
}

func TestPasswordHasher_ApplyPendingOnlyWhenStaged(t *testing.T) {
	hasher := NewPasswordHasher(4)
	user := &models.User{PasswordHash: "$2a$04$existinghashvalue"}

	require.NoError(t, hasher.ApplyPending(user))
	assert.Equal(t, "$2a$04$existinghashvalue", user.PasswordHash)

	user.SetPassword("freshpass")
	require.NoError(t, hasher.ApplyPending(user))
	assert.NotEqual(t, "$2a$04$existinghashvalue", user.PasswordHash)
	ok, err := hasher.Verify(user.PasswordHash, "freshpass")
	require.NoError(t, err)
	assert.True(t, ok)

	first := user.PasswordHash
	require.NoError(t, hasher.ApplyPending(user))
	assert.Equal(t, first, user.PasswordHash)
}

func TestPasswordHasher_SaltsEachHash(t *testing.T) {
	hasher := NewPasswordHasher(4)
	a, err := hasher.Hash("same-password")
	require.NoError(t, err)
	b, err := hasher.Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	ok, err := hasher.Verify("", "anything")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = hasher.Verify("not-a-bcrypt-hash", "anything")
	assert.Error(t, err)
}

func TestPasswordHasher_CompareDummyUsesConfiguredCost(t *testing.T) {
	hasher := NewPasswordHasher(5)
	hasher.CompareDummy("whatever")
	require.NotEmpty(t, hasher.dummy)

	cost, err := bcrypt.Cost(hasher.dummy)
	require.NoError(t, err)
	assert.Equal(t, 5, cost)

	first := hasher.dummy
	hasher.CompareDummy("another")
	assert.Equal(t, first, hasher.dummy)
}
