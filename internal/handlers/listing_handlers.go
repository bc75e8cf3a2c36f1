package handlers

import (
	"net/http"
	"strings"

	"servicehub/internal/common"
	"servicehub/internal/middleware"
	"servicehub/internal/models"
	"servicehub/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ListingHandlers exposes the listing lifecycle over HTTP.
type ListingHandlers struct {
	listings services.ListingService
	logger   *zap.Logger
}

func NewListingHandlers(listings services.ListingService, logger *zap.Logger) *ListingHandlers {
	return &ListingHandlers{listings: listings, logger: logger}
}

// ListListingsRequest represents query parameters for the public listing search
type ListListingsRequest struct {
	Category string `query:"category"`
	Location string `query:"location"`
	Limit    int    `query:"limit"`
	Offset   int    `query:"offset"`
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

type ListingListResponse struct {
	Listings []models.ListingView `json:"listings"`
	Limit    int                  `json:"limit,omitempty"`
	Offset   int                  `json:"offset,omitempty"`
	Count    int                  `json:"count"`
}

func listResponse(listings []*models.Listing, limit, offset int) ListingListResponse {
	return ListingListResponse{
		Listings: models.NewListingViews(listings),
		Limit:    limit,
		Offset:   offset,
		Count:    len(listings),
	}
}

// ListPublic returns approved, active listings.
// @Summary Browse services
// @Tags services
// @Produce json
// @Param category query string false "category"
// @Param location query string false "location substring"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} ListingListResponse
// @Router /services [get]
func (h *ListingHandlers) ListPublic(c echo.Context) error {
	var req ListListingsRequest
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("query", "invalid query parameters"))
	}
	limit, offset := common.ValidatePaginationParams(req.Limit, req.Offset)

	filter := &models.ListingFilter{Limit: limit, Offset: offset}
	if category := strings.TrimSpace(req.Category); category != "" {
		cat := models.Category(category)
		filter.Category = &cat
	}
	if location := strings.TrimSpace(req.Location); location != "" {
		filter.Location = &location
	}

	listings, err := h.listings.ListPublic(c.Request().Context(), filter)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, listResponse(listings, limit, offset))
}

// Categories lists the valid listing categories.
// @Summary Listing categories
// @Tags services
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /services/categories [get]
func (h *ListingHandlers) Categories(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"categories": h.listings.Categories()})
}

// Get returns a single listing. Hidden listings are visible to owner and admins only.
// @Summary Get a service listing
// @Tags services
// @Produce json
// @Param id path string true "listing id"
// @Success 200 {object} models.ListingView
// @Failure 404 {object} common.ErrorResponse
// @Router /services/{id} [get]
func (h *ListingHandlers) Get(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	listing, err := h.listings.Get(c.Request().Context(), middleware.Identity(c), id)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, models.NewListingView(listing))
}

// Create submits a listing for moderation.
// @Summary Submit a service listing
// @Tags services
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body models.ListingInput true "listing"
// @Success 201 {object} models.ListingView
// @Failure 400 {object} common.ErrorResponse
// @Failure 403 {object} common.ErrorResponse
// @Router /services [post]
func (h *ListingHandlers) Create(c echo.Context) error {
	var req models.ListingInput
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("body", "invalid request format"))
	}
	listing, err := h.listings.Submit(c.Request().Context(), middleware.Identity(c), &req)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, models.NewListingView(listing))
}

// Update edits a listing. Owner edits send it back to moderation.
// @Summary Update a service listing
// @Tags services
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "listing id"
// @Param body body models.ListingInput true "listing"
// @Success 200 {object} models.ListingView
// @Router /services/{id} [put]
func (h *ListingHandlers) Update(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	var req models.ListingInput
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("body", "invalid request format"))
	}
	listing, err := h.listings.Update(c.Request().Context(), middleware.Identity(c), id, &req)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, models.NewListingView(listing))
}

// ListMine returns every listing of the calling provider.
// @Summary My listings
// @Tags services
// @Security BearerAuth
// @Produce json
// @Success 200 {object} ListingListResponse
// @Router /services/mine [get]
func (h *ListingHandlers) ListMine(c echo.Context) error {
	listings, err := h.listings.ListMine(c.Request().Context(), middleware.Identity(c))
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, listResponse(listings, 0, 0))
}

// SetActive activates or deactivates a listing.
// @Summary Toggle listing activity
// @Tags services
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "listing id"
// @Param body body SetActiveRequest true "flag"
// @Success 200 {object} models.ListingView
// @Router /services/{id}/active [patch]
func (h *ListingHandlers) SetActive(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	var req SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("body", "invalid request format"))
	}
	if req.IsActive == nil {
		return common.RespondError(c, h.logger, common.NewValidationError("is_active", "is required"))
	}
	listing, err := h.listings.SetActive(c.Request().Context(), middleware.Identity(c), id, *req.IsActive)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, models.NewListingView(listing))
}

// UploadImage stores a listing image and records its URL.
// @Summary Upload listing image
// @Tags services
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "listing id"
// @Param image formData file true "image"
// @Success 200 {object} models.ListingView
// @Router /services/{id}/image [post]
func (h *ListingHandlers) UploadImage(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("image", "is required"))
	}
	file, err := fh.Open()
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	defer file.Close()

	listing, err := h.listings.AttachImage(c.Request().Context(), middleware.Identity(c), id, file, fh.Size)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, models.NewListingView(listing))
}

// ListPending is the admin moderation queue, oldest first.
// @Summary Pending listings
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} ListingListResponse
// @Router /admin/services/pending [get]
func (h *ListingHandlers) ListPending(c echo.Context) error {
	var req ListListingsRequest
	if err := c.Bind(&req); err != nil {
		return common.RespondError(c, h.logger, common.NewValidationError("query", "invalid query parameters"))
	}
	limit, offset := common.ValidatePaginationParams(req.Limit, req.Offset)
	listings, err := h.listings.ListPending(c.Request().Context(), middleware.Identity(c), limit, offset)
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, listResponse(listings, limit, offset))
}

// Approve makes a listing eligible for public view.
// @Summary Approve listing
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "listing id"
// @Success 200 {object} models.ListingView
// @Router /admin/services/{id}/approve [post]
func (h *ListingHandlers) Approve(c echo.Context) error {
	return h.moderate(c, true)
}

// Reject withdraws approval.
// @Summary Reject listing
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "listing id"
// @Success 200 {object} models.ListingView
// @Router /admin/services/{id}/reject [post]
func (h *ListingHandlers) Reject(c echo.Context) error {
	return h.moderate(c, false)
}

func (h *ListingHandlers) moderate(c echo.Context, approve bool) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	var listing *models.Listing
	if approve {
		listing, err = h.listings.Approve(c.Request().Context(), middleware.Identity(c), id)
	} else {
		listing, err = h.listings.Reject(c.Request().Context(), middleware.Identity(c), id)
	}
	if err != nil {
		return common.RespondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, models.NewListingView(listing))
}
