package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"servicehub/internal/common"
	"servicehub/internal/config"
	"servicehub/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// memUserRepo is an in-memory UserRepository. SwapRefreshToken runs under a
// lock to mirror the single-statement compare-and-swap in Postgres.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[uuid.UUID]*models.User{}}
}

func (r *memUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return &common.ConflictError{Field: "email", Message: "an account with this email already exists"}
		}
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *memUserRepo) lookup(id uuid.UUID) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, common.NewNotFoundError("user")
	}
	return u, nil
}

func (r *memUserRepo) byEmail(email string) (*models.User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, common.NewNotFoundError("user")
}

func public(u *models.User) *models.User {
	out := *u
	out.PasswordHash = ""
	out.RefreshToken = nil
	out.RefreshTokenExpiresAt = nil
	return &out
}

func withSecrets(u *models.User) *models.User {
	out := *u
	if u.RefreshToken != nil {
		tok := *u.RefreshToken
		out.RefreshToken = &tok
	}
	return &out
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return public(u), nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.byEmail(email)
	if err != nil {
		return nil, err
	}
	return public(u), nil
}

func (r *memUserRepo) GetByIDWithSecrets(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return withSecrets(u), nil
}

func (r *memUserRepo) GetByEmailWithSecrets(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.byEmail(email)
	if err != nil {
		return nil, err
	}
	return withSecrets(u), nil
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(id)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.RefreshToken, u.RefreshTokenExpiresAt = nil, nil
	return nil
}

func (r *memUserRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(id)
	if err != nil {
		return err
	}
	u.IsActive = active
	if !active {
		u.RefreshToken, u.RefreshTokenExpiresAt = nil, nil
	}
	return nil
}

func (r *memUserRepo) MarkEmailVerified(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(id)
	if err != nil {
		return err
	}
	u.IsEmailVerified = true
	return nil
}

func (r *memUserRepo) SetRefreshToken(_ context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(id)
	if err != nil {
		return err
	}
	u.RefreshToken, u.RefreshTokenExpiresAt = &token, &expiresAt
	return nil
}

func (r *memUserRepo) SwapRefreshToken(_ context.Context, id uuid.UUID, current, next string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !u.IsActive || u.RefreshToken == nil || *u.RefreshToken != current {
		return false, nil
	}
	u.RefreshToken, u.RefreshTokenExpiresAt = &next, &expiresAt
	return true, nil
}

func (r *memUserRepo) ClearRefreshToken(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(id)
	if err != nil {
		return err
	}
	u.RefreshToken, u.RefreshTokenExpiresAt = nil, nil
	return nil
}

func (r *memUserRepo) ClearExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		if u.RefreshToken != nil && u.RefreshTokenExpiresAt != nil && u.RefreshTokenExpiresAt.Before(now) {
			u.RefreshToken, u.RefreshTokenExpiresAt = nil, nil
			n++
		}
	}
	return n, nil
}

// storedRefreshToken peeks at the persisted token.
func (r *memUserRepo) storedRefreshToken(id uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok && u.RefreshToken != nil {
		return *u.RefreshToken
	}
	return ""
}

// memListingRepo is an in-memory ListingRepository that applies the same
// visibility rule as the SQL queries.
type memListingRepo struct {
	mu       sync.Mutex
	listings map[uuid.UUID]*models.Listing
	clock    time.Time
	writes   int
}

func newMemListingRepo() *memListingRepo {
	return &memListingRepo{
		listings: map[uuid.UUID]*models.Listing{},
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memListingRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memListingRepo) Create(_ context.Context, listing *models.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.tick()
	listing.CreatedAt, listing.UpdatedAt = now, now
	stored := *listing
	r.listings[listing.ID] = &stored
	r.writes++
	return nil
}

func (r *memListingRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, common.NewNotFoundError("listing")
	}
	out := *l
	return &out, nil
}

func (r *memListingRepo) mutate(id uuid.UUID, fn func(l *models.Listing)) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, common.NewNotFoundError("listing")
	}
	fn(l)
	l.UpdatedAt = r.tick()
	r.writes++
	out := *l
	return &out, nil
}

func (r *memListingRepo) Update(_ context.Context, id uuid.UUID, in *models.ListingInput, resetApproval bool) (*models.Listing, error) {
	return r.mutate(id, func(l *models.Listing) {
		l.Title, l.Description, l.Category = in.Title, in.Description, in.Category
		l.Location, l.Price, l.ImageURL = in.Location, in.Price, in.ImageURL
		if resetApproval {
			l.IsApproved = false
		}
	})
}

func (r *memListingRepo) SetApproved(_ context.Context, id uuid.UUID, approved bool) (*models.Listing, error) {
	return r.mutate(id, func(l *models.Listing) { l.IsApproved = approved })
}

func (r *memListingRepo) SetActive(_ context.Context, id uuid.UUID, active bool) (*models.Listing, error) {
	return r.mutate(id, func(l *models.Listing) { l.IsActive = active })
}

func (r *memListingRepo) SetImageURL(_ context.Context, id uuid.UUID, url string) (*models.Listing, error) {
	return r.mutate(id, func(l *models.Listing) { l.ImageURL = url })
}

func (r *memListingRepo) collect(keep func(l *models.Listing) bool, newestFirst bool) []*models.Listing {
	out := []*models.Listing{}
	for _, l := range r.listings {
		if keep(l) {
			c := *l
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memListingRepo) ListPublic(_ context.Context, filter *models.ListingFilter) ([]*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if filter == nil {
		filter = &models.ListingFilter{}
	}
	return r.collect(func(l *models.Listing) bool {
		if !l.IsApproved || !l.IsActive {
			return false
		}
		if filter.Category != nil && l.Category != *filter.Category {
			return false
		}
		if filter.Location != nil && !strings.Contains(strings.ToLower(l.Location), strings.ToLower(*filter.Location)) {
			return false
		}
		return true
	}, true), nil
}

func (r *memListingRepo) ListByProvider(_ context.Context, providerID uuid.UUID) ([]*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(l *models.Listing) bool { return l.ProviderID == providerID }, true), nil
}

func (r *memListingRepo) ListPending(_ context.Context, _, _ int) ([]*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(l *models.Listing) bool { return !l.IsApproved && l.IsActive }, false), nil
}

func (r *memListingRepo) CountPending(ctx context.Context) (int, error) {
	pending, _ := r.ListPending(ctx, 0, 0)
	return len(pending), nil
}

func (r *memListingRepo) CountPublicByProvider(_ context.Context, providerID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.listings {
		if l.ProviderID == providerID && l.IsPublic() {
			n++
		}
	}
	return n, nil
}

func (r *memListingRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// memCache is an in-memory CacheService.
type memCache struct {
	mu       sync.Mutex
	failures map[string]int
	tokens   map[string]uuid.UUID
}

func newMemCache() *memCache {
	return &memCache{failures: map[string]int{}, tokens: map[string]uuid.UUID{}}
}

func (c *memCache) LoginFailures(_ context.Context, email string) (int, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[email], 10 * time.Minute, nil
}

func (c *memCache) RecordLoginFailure(_ context.Context, email string, _ time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[email]++
	return c.failures[email], nil
}

func (c *memCache) ResetLoginFailures(_ context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, email)
	return nil
}

func (c *memCache) SaveVerificationToken(_ context.Context, hash string, userID uuid.UUID, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[hash] = userID
	return nil
}

func (c *memCache) ConsumeVerificationToken(_ context.Context, hash string) (uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.tokens[hash]
	delete(c.tokens, hash)
	return id, ok, nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func testTokenConfig() config.TokenConfig {
	return config.TokenConfig{
		AccessSecret:  "access-secret-for-tests-0123456789",
		RefreshSecret: "refresh-secret-for-tests-987654321",
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "servicehub-test",
	}
}

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		BcryptCost:           4,
		LoginMaxAttempts:     5,
		LoginWindow:          15 * time.Minute,
		EmailVerificationTTL: 24 * time.Hour,
		PhoneDefaultRegion:   "IN",
	}
}

type testEnv struct {
	users    *memUserRepo
	listings *memListingRepo
	cache    *memCache
	tokens   TokenService
	userSvc  UserService
	logger   *zap.Logger
}

func newTestEnv(opts ...TokenOption) *testEnv {
	logger := zap.NewNop()
	env := &testEnv{
		users:    newMemUserRepo(),
		listings: newMemListingRepo(),
		cache:    newMemCache(),
		logger:   logger,
	}
	env.tokens = NewTokenService(env.users, testTokenConfig(), logger, opts...)
	env.userSvc = NewUserService(env.users, env.listings, env.tokens, env.cache, testSecurityConfig(), logger)
	return env
}
