package listing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/apoorvlathey/invite-markets-api/internal/pkg/response"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/signedaction"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/validator"
)

// Handler handles listing HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates listing handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /listings
// @Summary Create a listing
// @Description Creates a new listing on behalf of the seller address proven by the EIP-712 CreateListing signature
// @Tags Listings
// @Accept json
// @Produce json
// @Param request body CreateRequest true "Listing payload with signature"
// @Success 201 {object} response.Response{data=PublicView}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /listings [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	l, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, ToPublicView(l))
}

// List handles GET /listings
// @Summary List listings
// @Description Returns active listings, optionally filtered by app or seller. Secret fields are never included.
// @Tags Listings
// @Produce json
// @Param appId query string false "Filter by app ID"
// @Param seller query string false "Filter by seller address"
// @Param status query string false "Filter by status (default active)"
// @Success 200 {object} response.Response{data=[]PublicView}
// @Router /listings [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f := Filter{
		AppID:         r.URL.Query().Get("appId"),
		SellerAddress: r.URL.Query().Get("seller"),
		Status:        StatusActive,
	}
	if st := r.URL.Query().Get("status"); st != "" {
		f.Status = Status(st)
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			f.Limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			f.Offset = v
		}
	}

	listings, err := h.service.List(r.Context(), f)
	if err != nil {
		log.Error().Err(err).Msg("listing list failed")
		response.InternalError(w)
		return
	}
	response.OK(w, ToPublicViews(listings))
}

// Get handles GET /listings/{slug}
// @Summary Get a listing
// @Tags Listings
// @Produce json
// @Param slug path string true "Listing slug"
// @Success 200 {object} response.Response{data=PublicView}
// @Failure 404 {object} response.Response
// @Router /listings/{slug} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	l, err := h.service.GetBySlug(r.Context(), slug)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, ToPublicView(l))
}

// Update handles PUT /listings/{slug}
// @Summary Update a listing
// @Description Applies a seller-signed UpdateListing mutation
// @Tags Listings
// @Accept json
// @Produce json
// @Param slug path string true "Listing slug"
// @Param request body UpdateRequest true "Mutation payload with signature"
// @Success 200 {object} response.Response{data=PublicView}
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /listings/{slug} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	l, err := h.service.Update(r.Context(), slug, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, ToPublicView(l))
}

// Delete handles DELETE /listings/{slug}
// @Summary Cancel a listing
// @Description Transitions the listing to cancelled after verifying the seller's DeleteListing signature
// @Tags Listings
// @Accept json
// @Produce json
// @Param slug path string true "Listing slug"
// @Param request body DeleteRequest true "Signed delete payload"
// @Success 204
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /listings/{slug} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.service.Delete(r.Context(), slug, req); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

// Secret handles POST /listings/{slug}/secret
// @Summary Reveal a listing's secret to its seller
// @Description Returns the secret payload after verifying a freeform timestamped signature from the seller
// @Tags Listings
// @Accept json
// @Produce json
// @Param slug path string true "Listing slug"
// @Param request body SecretRequest true "Base64 message and signature"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /listings/{slug}/secret [post]
func (h *Handler) Secret(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	var req SecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	secret, err := h.service.RevealToSeller(r.Context(), slug, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, secret)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrListingNotFound):
		response.NotFound(w, "Listing not found")
	case errors.Is(err, ErrListingNotActive):
		response.Conflict(w, "Listing is not active")
	case errors.Is(err, ErrMissingSecret):
		response.BadRequest(w, "Secret fields do not match the listing type")
	case errors.Is(err, signedaction.ErrUnauthorized):
		// Uniform message; which check failed is only logged server-side.
		response.Unauthorized(w, "Invalid signature")
	default:
		log.Error().Err(err).Msg("listing request failed")
		response.InternalError(w)
	}
}
