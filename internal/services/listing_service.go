package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"servicehub/internal/common"
	"servicehub/internal/models"
	"servicehub/internal/repositories"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ListingService drives the listing lifecycle: providers submit and edit,
// admins moderate, owners and admins toggle activity. A listing is public
// only while it is both approved and active.
type ListingService interface {
	Submit(ctx context.Context, caller *models.Identity, input *models.ListingInput) (*models.Listing, error)
	Approve(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Listing, error)
	Reject(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Listing, error)
	SetActive(ctx context.Context, caller *models.Identity, id uuid.UUID, active bool) (*models.Listing, error)
	Update(ctx context.Context, caller *models.Identity, id uuid.UUID, input *models.ListingInput) (*models.Listing, error)
	AttachImage(ctx context.Context, caller *models.Identity, id uuid.UUID, image io.Reader, size int64) (*models.Listing, error)

	Get(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Listing, error)
	ListPublic(ctx context.Context, filter *models.ListingFilter) ([]*models.Listing, error)
	ListMine(ctx context.Context, caller *models.Identity) ([]*models.Listing, error)
	ListPending(ctx context.Context, caller *models.Identity, limit, offset int) ([]*models.Listing, error)
	CountPending(ctx context.Context) (int, error)
	Categories() []models.Category
}

type listingService struct {
	listings repositories.ListingRepository
	images   MinioService
	logger   *zap.Logger
}

// NewListingService wires the lifecycle manager. images may be nil, in which
// case AttachImage is unavailable.
func NewListingService(listings repositories.ListingRepository, images MinioService, logger *zap.Logger) ListingService {
	return &listingService{listings: listings, images: images, logger: logger}
}

// largest value a NUMERIC(12,2) price column holds
const maxListingPrice = 9999999999.99

func categoryValues() []interface{} {
	values := make([]interface{}, 0, len(models.Categories))
	for _, c := range models.Categories {
		values = append(values, c)
	}
	return values
}

func normalizeListingInput(input *models.ListingInput) models.ListingInput {
	in := *input
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	// round half away from zero on the decimal form, so 500.555 becomes 500.56
	in.Price = decimal.NewFromFloat(in.Price).Round(2).InexactFloat64()
	return in
}

func validateListingInput(in *models.ListingInput) error {
	err := validation.ValidateStruct(in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(3, 100)),
		validation.Field(&in.Description, validation.Required, validation.RuneLength(10, 1000)),
		validation.Field(&in.Category, validation.Required, validation.In(categoryValues()...)),
		validation.Field(&in.Location, validation.Required),
		validation.Field(&in.Price, validation.Min(float64(0)), validation.Max(float64(maxListingPrice))),
		validation.Field(&in.ImageURL, is.URL),
	)
	return common.FromValidation(err)
}

func (s *listingService) Submit(ctx context.Context, caller *models.Identity, input *models.ListingInput) (*models.Listing, error) {
	if err := common.RequireRole(caller, models.RoleProvider); err != nil {
		return nil, err
	}
	if input == nil {
		return nil, common.NewValidationError("body", "is required")
	}
	in := normalizeListingInput(input)
	if err := validateListingInput(&in); err != nil {
		return nil, err
	}

	listing := &models.Listing{
		ID:          uuid.New(),
		ProviderID:  caller.ID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		Price:       in.Price,
		ImageURL:    in.ImageURL,
		IsApproved:  false,
		IsActive:    true,
	}
	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, err
	}

	s.logger.Info("listing submitted",
		zap.String("listing_id", listing.ID.String()),
		zap.String("provider_id", caller.ID.String()),
		zap.String("category", string(listing.Category)),
	)
	return listing, nil
}

func (s *listingService) Approve(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Listing, error) {
	return s.moderate(ctx, caller, id, true)
}

func (s *listingService) Reject(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Listing, error) {
	return s.moderate(ctx, caller, id, false)
}

// moderate checks admin rights before touching the store, so a refused call
// leaves is_approved as it was.
func (s *listingService) moderate(ctx context.Context, caller *models.Identity, id uuid.UUID, approved bool) (*models.Listing, error) {
	if err := common.RequireAdmin(caller); err != nil {
		return nil, err
	}
	listing, err := s.listings.SetApproved(ctx, id, approved)
	if err != nil {
		return nil, err
	}
	s.logger.Info("listing moderated",
		zap.String("listing_id", id.String()),
		zap.Bool("approved", approved),
		zap.String("admin_id", caller.ID.String()),
	)
	return listing, nil
}

// SetActive is idempotent: setting the current value again succeeds.
func (s *listingService) SetActive(ctx context.Context, caller *models.Identity, id uuid.UUID, active bool) (*models.Listing, error) {
	if caller == nil {
		return nil, common.NewAuthError(common.Unauthenticated, "authentication required")
	}
	current, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := common.RequireOwnerOrAdmin(caller, current.ProviderID); err != nil {
		return nil, err
	}
	listing, err := s.listings.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	s.logger.Info("listing activity changed",
		zap.String("listing_id", id.String()),
		zap.Bool("active", active),
	)
	return listing, nil
}

// Update replaces the editable fields. When the owner edits, the listing goes
// back to moderation; an admin edit keeps the current approval.
func (s *listingService) Update(ctx context.Context, caller *models.Identity, id uuid.UUID, input *models.ListingInput) (*models.Listing, error) {
	if caller == nil {
		return nil, common.NewAuthError(common.Unauthenticated, "authentication required")
	}
	if input == nil {
		return nil, common.NewValidationError("body", "is required")
	}
	current, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := common.RequireOwnerOrAdmin(caller, current.ProviderID); err != nil {
		return nil, err
	}

	in := normalizeListingInput(input)
	if in.ImageURL == "" {
		in.ImageURL = current.ImageURL
	}
	if err := validateListingInput(&in); err != nil {
		return nil, err
	}

	resetApproval := caller.ID == current.ProviderID
	return s.listings.Update(ctx, id, &in, resetApproval)
}

func (s *listingService) AttachImage(ctx context.Context, caller *models.Identity, id uuid.UUID, image io.Reader, size int64) (*models.Listing, error) {
	if caller == nil {
		return nil, common.NewAuthError(common.Unauthenticated, "authentication required")
	}
	if s.images == nil {
		return nil, errors.New("image storage is not configured")
	}
	current, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := common.RequireOwnerOrAdmin(caller, current.ProviderID); err != nil {
		return nil, err
	}

	url, err := s.images.UploadListingImage(ctx, id, image, size)
	if err != nil {
		return nil, err
	}
	return s.listings.SetImageURL(ctx, id, url)
}

// Get returns a public listing to anyone. Hidden listings are only returned
// to their owner or an admin; everyone else gets NotFound.
func (s *listingService) Get(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.IsPublic() {
		return listing, nil
	}
	if caller != nil && common.RequireOwnerOrAdmin(caller, listing.ProviderID) == nil {
		return listing, nil
	}
	return nil, common.NewNotFoundError("listing")
}

func (s *listingService) ListPublic(ctx context.Context, filter *models.ListingFilter) ([]*models.Listing, error) {
	if filter != nil && filter.Category != nil && !filter.Category.Valid() {
		return nil, common.NewValidationError("category", "must be a valid value")
	}
	return s.listings.ListPublic(ctx, filter)
}

func (s *listingService) ListMine(ctx context.Context, caller *models.Identity) ([]*models.Listing, error) {
	if err := common.RequireRole(caller, models.RoleProvider); err != nil {
		return nil, err
	}
	return s.listings.ListByProvider(ctx, caller.ID)
}

func (s *listingService) ListPending(ctx context.Context, caller *models.Identity, limit, offset int) ([]*models.Listing, error) {
	if err := common.RequireAdmin(caller); err != nil {
		return nil, err
	}
	return s.listings.ListPending(ctx, limit, offset)
}

// CountPending feeds the moderation backlog job. It carries no caller and has
// no HTTP route.
func (s *listingService) CountPending(ctx context.Context) (int, error) {
	return s.listings.CountPending(ctx)
}

func (s *listingService) Categories() []models.Category {
	out := make([]models.Category, len(models.Categories))
	copy(out, models.Categories)
	return out
}
