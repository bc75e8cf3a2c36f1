package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryPlumber     Category = "Plumber"
	CategoryElectrician Category = "Electrician"
	CategoryMechanic    Category = "Mechanic"
	CategoryTutor       Category = "Tutor"
	CategoryBabysitter  Category = "Babysitter"
	CategoryCleaning    Category = "Cleaning"
	CategoryCarpenter   Category = "Carpenter"
	CategoryOther       Category = "Other"
)

// Categories is the fixed set of listing categories, in display order.
var Categories = []Category{
	CategoryPlumber,
	CategoryElectrician,
	CategoryMechanic,
	CategoryTutor,
	CategoryBabysitter,
	CategoryCleaning,
	CategoryCarpenter,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Listing is a provider's service offering. There is deliberately no combined
// status column: visibility is always derived from both flags.
type Listing struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ProviderID  uuid.UUID `json:"provider_id" db:"provider_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Category    Category  `json:"category" db:"category"`
	Location    string    `json:"location" db:"location"`
	Price       float64   `json:"price" db:"price"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	IsApproved  bool      `json:"is_approved" db:"is_approved"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// IsPublic reports whether consumers may see the listing.
func (l *Listing) IsPublic() bool {
	return l.IsApproved && l.IsActive
}

func (l *Listing) FormattedPrice() string {
	return fmt.Sprintf("₹%.2f", l.Price)
}

// ListingView is the response shape with derived fields filled in on read.
type ListingView struct {
	*Listing
	FormattedPrice string `json:"formatted_price"`
}

func NewListingView(l *Listing) ListingView {
	return ListingView{Listing: l, FormattedPrice: l.FormattedPrice()}
}

func NewListingViews(listings []*Listing) []ListingView {
	views := make([]ListingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, NewListingView(l))
	}
	return views
}

// ListingInput carries the provider-editable fields of a listing.
type ListingInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Location    string   `json:"location"`
	Price       float64  `json:"price"`
	ImageURL    string   `json:"image_url"`
}

// ListingFilter holds the optional filters of the public listing query.
type ListingFilter struct {
	Category *Category `json:"category,omitempty"`
	Location *string   `json:"location,omitempty"`
	Limit    int       `json:"limit,omitempty"`
	Offset   int       `json:"offset,omitempty"`
}
