package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/galactic-archives/internal/auth"
	"github.com/dukerupert/galactic-archives/internal/billing"
	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
)

const maxWebhookBody = 64 << 10

// BillingHandler serves the checkout, portal, catalog and webhook routes.
// A nil service means billing is not configured.
type BillingHandler struct {
	svc      *billing.Service
	products store.Products
	logger   *slog.Logger
}

func NewBillingHandler(svc *billing.Service, products store.Products, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{svc: svc, products: products, logger: logger}
}

func (h *BillingHandler) configured(w http.ResponseWriter) bool {
	if h.svc == nil {
		writeError(w, http.StatusServiceUnavailable, "Billing not configured")
		return false
	}
	return true
}

type checkoutRequest struct {
	PriceID   string `json:"price_id"`
	LookupKey string `json:"lookup_key"`
}

type urlResponse struct {
	URL string `json:"url"`
}

func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeError(w, err)
		return
	}

	u, _ := auth.UserFromContext(r.Context())
	url, err := h.svc.CheckoutURL(r.Context(), u, req.PriceID, req.LookupKey)
	if err != nil {
		h.billingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}

	u, _ := auth.UserFromContext(r.Context())
	url, err := h.svc.PortalURL(r.Context(), u)
	if err != nil {
		h.billingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

// billingError maps service failures to responses. Provider messages are
// logged and never forwarded.
func (h *BillingHandler) billingError(w http.ResponseWriter, err error) {
	var pe *billing.ProviderError
	switch {
	case errors.Is(err, billing.ErrInvalidLookupKey):
		writeError(w, http.StatusBadRequest, "Invalid price lookup key")
	case errors.Is(err, billing.ErrMissingPrice):
		writeError(w, http.StatusBadRequest, "Missing price_id or lookup_key")
	case errors.As(err, &pe):
		h.logger.Error("billing provider", "op", pe.Op, "error", pe.Err)
		switch pe.Op {
		case billing.OpResolveCustomer:
			writeError(w, http.StatusInternalServerError, "Failed to initialize billing account")
		case billing.OpCheckoutSession:
			writeError(w, http.StatusBadRequest, "Failed to create checkout session")
		case billing.OpPortalSession:
			writeError(w, http.StatusInternalServerError, "Failed to create portal session")
		default:
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
	default:
		storeError(w, h.logger, "Internal server error", err)
	}
}

// Products lists the catalog. It reads only the store, so it works
// without provider credentials.
func (h *BillingHandler) Products(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		storeError(w, h.logger, "Failed to retrieve products", err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	err = h.svc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "Invalid signature")
	case err != nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "error",
			"detail": "webhook processing failed",
		})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
