package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/galactic-archives/internal/metrics"
	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
)

var (
	ErrInvalidLookupKey = errors.New("invalid price lookup key")
	ErrMissingPrice     = errors.New("missing price_id or lookup_key")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ProviderError wraps a failed call to the payment provider. Op names the
// step that failed.
type ProviderError struct {
	Op  string
	Err error
}

// Provider steps reported in ProviderError.Op.
const (
	OpResolveCustomer = "resolve customer"
	OpResolveLookup   = "resolve lookup key"
	OpCheckoutSession = "create checkout session"
	OpPortalSession   = "create portal session"
)

func (e *ProviderError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// Provider is the part of Stripe the service depends on.
type Provider interface {
	FindOrCreateCustomer(email, userID string) (string, error)
	PriceIDForLookupKey(lookupKey string) (string, error)
	CreateCheckoutSession(customerID, priceID, userID string) (string, error)
	CreateBillingPortalSession(customerID string) (string, error)
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
	EnsureCatalogEntry(e CatalogEntry) (model.Product, error)
}

type Service struct {
	provider Provider
	users    store.Users
	products store.Products
	metrics  *metrics.Collector
	logger   *slog.Logger
}

func NewService(p Provider, users store.Users, products store.Products, m *metrics.Collector, logger *slog.Logger) *Service {
	return &Service{
		provider: p,
		users:    users,
		products: products,
		metrics:  m,
		logger:   logger.With("component", "billing"),
	}
}

// CustomerID returns the user's Stripe customer, resolving and persisting
// it on first use.
func (s *Service) CustomerID(ctx context.Context, u *model.User) (string, error) {
	if u.StripeCustomerID != "" {
		return u.StripeCustomerID, nil
	}
	id, err := s.provider.FindOrCreateCustomer(u.Email, u.ID)
	if err != nil {
		return "", &ProviderError{Op: OpResolveCustomer, Err: err}
	}
	if err := s.users.SetStripeCustomerID(ctx, u.ID, id); err != nil {
		return "", fmt.Errorf("save customer id: %w", err)
	}
	u.StripeCustomerID = id
	return id, nil
}

// CheckoutURL starts a subscription checkout. An explicit priceID wins over
// lookupKey, which is resolved through the catalog and then Stripe.
func (s *Service) CheckoutURL(ctx context.Context, u *model.User, priceID, lookupKey string) (string, error) {
	customerID, err := s.CustomerID(ctx, u)
	if err != nil {
		return "", err
	}

	if priceID == "" && lookupKey != "" {
		priceID, err = s.resolveLookupKey(ctx, lookupKey)
		if err != nil {
			return "", err
		}
	}
	if priceID == "" {
		return "", ErrMissingPrice
	}

	url, err := s.provider.CreateCheckoutSession(customerID, priceID, u.ID)
	if err != nil {
		return "", &ProviderError{Op: OpCheckoutSession, Err: err}
	}
	return url, nil
}

func (s *Service) resolveLookupKey(ctx context.Context, lookupKey string) (string, error) {
	p, err := s.products.GetByLookupKey(ctx, lookupKey)
	if err != nil {
		return "", fmt.Errorf("get product: %w", err)
	}
	if p != nil && p.PriceID != "" {
		return p.PriceID, nil
	}

	priceID, err := s.provider.PriceIDForLookupKey(lookupKey)
	if err != nil {
		return "", &ProviderError{Op: OpResolveLookup, Err: err}
	}
	if priceID == "" {
		return "", ErrInvalidLookupKey
	}
	return priceID, nil
}

func (s *Service) PortalURL(ctx context.Context, u *model.User) (string, error) {
	customerID, err := s.CustomerID(ctx, u)
	if err != nil {
		return "", err
	}
	url, err := s.provider.CreateBillingPortalSession(customerID)
	if err != nil {
		return "", &ProviderError{Op: OpPortalSession, Err: err}
	}
	return url, nil
}

func (s *Service) Products(ctx context.Context) ([]model.Product, error) {
	return s.products.List(ctx)
}

// SeedCatalog provisions every entry in Stripe and records the mapping.
func (s *Service) SeedCatalog(ctx context.Context, entries []CatalogEntry) ([]model.Product, error) {
	var out []model.Product
	for _, e := range entries {
		p, err := s.provider.EnsureCatalogEntry(e)
		if err != nil {
			return out, &ProviderError{Op: "ensure " + e.LookupKey, Err: err}
		}
		if err := s.products.Upsert(ctx, p); err != nil {
			return out, fmt.Errorf("save product %s: %w", e.LookupKey, err)
		}
		s.logger.Info("catalog entry ready", "lookup_key", p.LookupKey, "price_id", p.PriceID)
		out = append(out, p)
	}
	return out, nil
}

// HandleWebhook verifies and applies one webhook delivery. A bad signature
// or payload returns ErrInvalidSignature; any other error means the event
// was authentic but could not be applied.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := s.provider.ConstructWebhookEvent(payload, sigHeader)
	if err != nil {
		s.logger.Warn("webhook rejected", "error", err)
		s.metrics.WebhookEvent("unknown", "rejected")
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	outcome := "success"
	err = s.applyEvent(ctx, event)
	switch {
	case errors.Is(err, errIgnored):
		outcome, err = "ignored", nil
	case err != nil:
		outcome = "error"
		s.logger.Error("webhook processing failed", "event_id", event.ID, "type", eventType, "error", err)
	}
	s.metrics.WebhookEvent(eventType, outcome)
	return err
}

var errIgnored = errors.New("event ignored")

func (s *Service) applyEvent(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		return errors.New("event has no data")
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("unmarshal subscription: %w", err)
		}
		return s.applySubscription(ctx, &sub)

	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("unmarshal checkout session: %w", err)
		}
		return s.applyCheckoutCompleted(ctx, &sess)

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("unmarshal invoice: %w", err)
		}
		var customerID string
		if invoice.Customer != nil {
			customerID = invoice.Customer.ID
		}
		s.logger.Info("invoice event", "type", string(event.Type), "invoice_id", invoice.ID, "customer_id", customerID)
		return nil
	}

	return errIgnored
}

func (s *Service) applySubscription(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil || sub.Customer.ID == "" {
		return errors.New("subscription has no customer")
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return errors.New("subscription has no price")
	}

	found, err := s.users.UpdateSubscription(ctx, sub.Customer.ID, model.Subscription{
		ID:      sub.ID,
		Status:  string(sub.Status),
		PriceID: sub.Items.Data[0].Price.ID,
	})
	if err != nil {
		return err
	}
	s.logger.Info("subscription updated",
		"customer_id", sub.Customer.ID,
		"status", string(sub.Status),
		"matched", found,
	)
	return nil
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID := sess.Metadata["user_id"]
	if userID == "" || sess.Customer == nil || sess.Customer.ID == "" {
		s.logger.Info("checkout completed without user or customer", "session_id", sess.ID)
		return nil
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		s.logger.Warn("checkout completed for unknown user", "session_id", sess.ID, "user_id", userID)
		return nil
	}
	if u.StripeCustomerID != "" {
		return nil
	}
	return s.users.SetStripeCustomerID(ctx, u.ID, sess.Customer.ID)
}
