package purchase

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/apoorvlathey/invite-markets-api/internal/domain/listing"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/response"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/signedaction"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/validator"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/x402"
)

// Handler handles purchase HTTP requests. The purchase and reveal endpoints
// bypass the standard response envelope: their wire shapes are fixed by the
// x402 client contract.
type Handler struct {
	service *Service
}

// NewHandler creates purchase handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RevealRequest is the body for POST /reveal.
type RevealRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
	Signature     string `json:"signature" validate:"required"`
	Message       string `json:"message" validate:"required"`
}

// Purchase handles POST /listings/{slug}/purchase
// @Summary Purchase a listing via x402
// @Description Settles the X-Payment proof through the facilitator and releases the listing secret. Without a payment header, responds 402 with the payment requirements.
// @Tags Purchase
// @Produce json
// @Param slug path string true "Listing slug"
// @Param X-Payment header string false "Base64 x402 payment proof"
// @Success 200 {object} object{listingType=string}
// @Failure 402 {object} x402.PaymentRequiredResponse
// @Failure 404 {object} object{error=string}
// @Failure 410 {object} object{error=string}
// @Router /listings/{slug}/purchase [post]
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	paymentHeader := r.Header.Get("X-Payment")
	if paymentHeader == "" {
		challenge, err := h.service.PaymentChallenge(r.Context(), slug)
		if err != nil {
			h.writePurchaseError(w, err)
			return
		}
		response.Raw(w, http.StatusPaymentRequired, challenge)
		return
	}

	secret, err := h.service.Settle(r.Context(), slug, paymentHeader)
	if err != nil {
		h.writePurchaseError(w, err)
		return
	}
	response.Raw(w, http.StatusOK, secret)
}

func (h *Handler) writePurchaseError(w http.ResponseWriter, err error) {
	var pass *x402.PassthroughError
	switch {
	case errors.Is(err, listing.ErrListingNotFound):
		response.RawError(w, http.StatusNotFound, "Listing not found")
	case errors.Is(err, listing.ErrListingNotAvailable):
		response.RawError(w, http.StatusGone, "Listing not available")
	case errors.As(err, &pass):
		// The facilitator's status and body are the protocol; forward
		// them untouched so the client SDK can retry correctly.
		response.RawBytes(w, pass.StatusCode, pass.Body)
	case errors.Is(err, x402.ErrInvalidPaymentHeader):
		response.RawError(w, http.StatusBadRequest, "Malformed X-PAYMENT header")
	case errors.Is(err, x402.ErrSettlementAmbiguous):
		response.RawError(w, http.StatusGatewayTimeout, "Payment settlement timed out, retry shortly")
	case errors.Is(err, ErrSettlementInFlight):
		response.RawError(w, http.StatusConflict, "Payment is already being settled")
	case errors.Is(err, ErrSecretUnavailable):
		response.Raw(w, http.StatusInternalServerError, map[string]interface{}{
			"error":          "Payment settled but the secret could not be resolved, contact support",
			"paymentSettled": true,
		})
	default:
		log.Error().Err(err).Msg("purchase settlement failed")
		response.RawError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Reveal handles POST /reveal
// @Summary Reveal a purchased secret
// @Description Returns the secret for a past purchase after verifying a fresh freeform signature from the buyer
// @Tags Purchase
// @Accept json
// @Produce json
// @Param request body RevealRequest true "Transaction ID, base64 message and signature"
// @Success 200 {object} object{success=bool,listingType=string}
// @Failure 400 {object} object{error=string}
// @Failure 401 {object} object{error=string}
// @Failure 404 {object} object{error=string}
// @Router /reveal [post]
func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	var req RevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RawError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.RawError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	secret, err := h.service.Reveal(r.Context(), req.TransactionID, req.Message, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrTransactionNotFound), errors.Is(err, listing.ErrListingNotFound):
			response.RawError(w, http.StatusNotFound, "Transaction or listing not found")
		case errors.Is(err, signedaction.ErrUnauthorized):
			response.RawError(w, http.StatusUnauthorized, "Invalid signature")
		default:
			log.Error().Err(err).Msg("reveal failed")
			response.RawError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	response.Raw(w, http.StatusOK, revealBody(secret))
}

// revealBody flattens the secret payload into the reveal response shape.
func revealBody(secret listing.SecretPayload) map[string]interface{} {
	switch p := secret.(type) {
	case listing.InviteLinkSecret:
		return map[string]interface{}{
			"success":     true,
			"listingType": p.ListingType,
			"inviteUrl":   p.InviteURL,
		}
	case listing.AccessCodeSecret:
		return map[string]interface{}{
			"success":     true,
			"listingType": p.ListingType,
			"appUrl":      p.AppURL,
			"accessCode":  p.AccessCode,
		}
	default:
		return map[string]interface{}{"success": true}
	}
}

// History handles GET /transactions
// @Summary Purchase history for a buyer address
// @Tags Purchase
// @Produce json
// @Param address query string true "Buyer address"
// @Success 200 {object} response.Response{data=[]Transaction}
// @Failure 400 {object} response.Response
// @Router /transactions [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if err := validator.ValidateVar(address, "required,eth_address"); err != nil {
		response.BadRequest(w, "invalid address")
		return
	}

	limit := 20
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	txs, err := h.service.History(r.Context(), address, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("transaction history failed")
		response.InternalError(w)
		return
	}
	response.OK(w, txs)
}
