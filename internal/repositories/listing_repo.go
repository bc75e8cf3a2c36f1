package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"servicehub/internal/common"
	"servicehub/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListingRepository persists service listings. Every flag change is a single
// UPDATE keyed by id so concurrent transitions never interleave.
type ListingRepository interface {
	Create(ctx context.Context, listing *models.Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	Update(ctx context.Context, id uuid.UUID, input *models.ListingInput, resetApproval bool) (*models.Listing, error)
	SetApproved(ctx context.Context, id uuid.UUID, approved bool) (*models.Listing, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Listing, error)
	SetImageURL(ctx context.Context, id uuid.UUID, imageURL string) (*models.Listing, error)
	ListPublic(ctx context.Context, filter *models.ListingFilter) ([]*models.Listing, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Listing, error)
	ListPending(ctx context.Context, limit, offset int) ([]*models.Listing, error)
	CountPending(ctx context.Context) (int, error)
	CountPublicByProvider(ctx context.Context, providerID uuid.UUID) (int, error)
}

const listingColumns = `id, provider_id, title, description, category, location, price, image_url, is_approved, is_active, created_at, updated_at`

type listingRepo struct {
	db Database
}

func NewListingRepo(db Database) ListingRepository {
	return &listingRepo{db: db}
}

func (r *listingRepo) Create(ctx context.Context, listing *models.Listing) error {
	query := `
		INSERT INTO service_listings (id, provider_id, title, description, category, location, price, image_url, is_approved, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		listing.ID, listing.ProviderID, listing.Title, listing.Description, listing.Category,
		listing.Location, listing.Price, listing.ImageURL, listing.IsApproved, listing.IsActive,
	).Scan(&listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (r *listingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM service_listings WHERE id = $1`
	return scanListing(r.db.QueryRow(ctx, query, id))
}

// Update rewrites the provider-editable fields. When resetApproval is set the
// listing drops back into the moderation queue.
func (r *listingRepo) Update(ctx context.Context, id uuid.UUID, input *models.ListingInput, resetApproval bool) (*models.Listing, error) {
	query := `
		UPDATE service_listings
		SET title = $2, description = $3, category = $4, location = $5, price = $6, image_url = $7,
		    is_approved = CASE WHEN $8 THEN FALSE ELSE is_approved END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + listingColumns
	return scanListing(r.db.QueryRow(ctx, query,
		id, input.Title, input.Description, input.Category, input.Location, input.Price, input.ImageURL, resetApproval,
	))
}

func (r *listingRepo) SetApproved(ctx context.Context, id uuid.UUID, approved bool) (*models.Listing, error) {
	query := `
		UPDATE service_listings
		SET is_approved = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + listingColumns
	return scanListing(r.db.QueryRow(ctx, query, id, approved))
}

func (r *listingRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Listing, error) {
	query := `
		UPDATE service_listings
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + listingColumns
	return scanListing(r.db.QueryRow(ctx, query, id, active))
}

func (r *listingRepo) SetImageURL(ctx context.Context, id uuid.UUID, imageURL string) (*models.Listing, error) {
	query := `
		UPDATE service_listings
		SET image_url = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + listingColumns
	return scanListing(r.db.QueryRow(ctx, query, id, imageURL))
}

// ListPublic returns approved and active listings, newest first. Both flags
// are part of every query; there is no cached visibility.
func (r *listingRepo) ListPublic(ctx context.Context, filter *models.ListingFilter) ([]*models.Listing, error) {
	if filter == nil {
		filter = &models.ListingFilter{}
	}
	limit, offset := common.ValidatePaginationParams(filter.Limit, filter.Offset)

	var (
		conditions = []string{"is_approved", "is_active"}
		args       []interface{}
	)
	if filter.Category != nil {
		args = append(args, *filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Location != nil {
		if loc := escapeLike(strings.TrimSpace(*filter.Location)); loc != "" {
			args = append(args, "%"+loc+"%")
			conditions = append(conditions, fmt.Sprintf("location ILIKE $%d", len(args)))
		}
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM service_listings
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		listingColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	return r.queryListings(ctx, query, args...)
}

func (r *listingRepo) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM service_listings
		WHERE provider_id = $1
		ORDER BY created_at DESC`
	return r.queryListings(ctx, query, providerID)
}

// ListPending is the moderation queue: active listings awaiting approval, oldest first.
func (r *listingRepo) ListPending(ctx context.Context, limit, offset int) ([]*models.Listing, error) {
	limit, offset = common.ValidatePaginationParams(limit, offset)
	query := `
		SELECT ` + listingColumns + `
		FROM service_listings
		WHERE NOT is_approved AND is_active
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2`
	return r.queryListings(ctx, query, limit, offset)
}

func (r *listingRepo) CountPending(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM service_listings WHERE NOT is_approved AND is_active`
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending listings: %w", err)
	}
	return count, nil
}

func (r *listingRepo) CountPublicByProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM service_listings WHERE provider_id = $1 AND is_approved AND is_active`
	if err := r.db.QueryRow(ctx, query, providerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count provider listings: %w", err)
	}
	return count, nil
}

func (r *listingRepo) queryListings(ctx context.Context, query string, args ...interface{}) ([]*models.Listing, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	listings := []*models.Listing{}
	for rows.Next() {
		l := &models.Listing{}
		if err := rows.Scan(listingDest(l)...); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return listings, nil
}

func listingDest(l *models.Listing) []interface{} {
	return []interface{}{
		&l.ID, &l.ProviderID, &l.Title, &l.Description, &l.Category, &l.Location,
		&l.Price, &l.ImageURL, &l.IsApproved, &l.IsActive, &l.CreatedAt, &l.UpdatedAt,
	}
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	l := &models.Listing{}
	if err := row.Scan(listingDest(l)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("listing")
		}
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	return l, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
