// Package billing connects users to Stripe subscriptions: customer
// resolution, checkout and portal sessions, webhook reconciliation, and the
// product catalog.
package billing

import (
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/galactic-archives/internal/model"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	FrontendURL   string
}

// Client talks to the Stripe API.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// FindOrCreateCustomer returns the first Stripe customer with email, creating
// one tagged with userID when none exists.
func (c *Client) FindOrCreateCustomer(email, userID string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Limit = stripe.Int64(1)
	iter := customer.List(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list stripe customers: %w", err)
	}

	create := &stripe.CustomerParams{Email: stripe.String(email)}
	create.AddMetadata("user_id", userID)
	cust, err := customer.New(create)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// PriceIDForLookupKey returns "" when no price carries the key.
func (c *Client) PriceIDForLookupKey(lookupKey string) (string, error) {
	params := &stripe.PriceListParams{LookupKeys: stripe.StringSlice([]string{lookupKey})}
	params.Limit = stripe.Int64(1)
	iter := price.List(params)
	if iter.Next() {
		return iter.Price().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list stripe prices: %w", err)
	}
	return "", nil
}

// CreateCheckoutSession creates a subscription checkout session and returns the URL.
func (c *Client) CreateCheckoutSession(customerID, priceID, userID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.cfg.FrontendURL + "/?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.cfg.FrontendURL + "/pricing"),
	}
	params.AddMetadata("user_id", userID)
	sess, err := checksession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreateBillingPortalSession creates a billing portal session returning to the frontend.
func (c *Client) CreateBillingPortalSession(customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.cfg.FrontendURL),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}

// ConstructEvent verifies a webhook payload against secret. Events from
// other API versions are accepted; only the fields read here must match.
func ConstructEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// EnsureCatalogEntry finds or creates the product and recurring price for e
// and returns the resulting mapping.
func (c *Client) EnsureCatalogEntry(e CatalogEntry) (model.Product, error) {
	productID, err := c.findOrCreateProduct(e)
	if err != nil {
		return model.Product{}, err
	}

	priceID, err := c.PriceIDForLookupKey(e.LookupKey)
	if err != nil {
		return model.Product{}, err
	}
	if priceID == "" {
		params := &stripe.PriceParams{
			Product:    stripe.String(productID),
			UnitAmount: stripe.Int64(e.Amount),
			Currency:   stripe.String(e.Currency),
			Recurring: &stripe.PriceRecurringParams{
				Interval: stripe.String(e.Interval),
			},
			LookupKey: stripe.String(e.LookupKey),
		}
		p, err := price.New(params)
		if err != nil {
			return model.Product{}, fmt.Errorf("create stripe price %s: %w", e.LookupKey, err)
		}
		priceID = p.ID
	}

	return e.Product(priceID), nil
}

func (c *Client) findOrCreateProduct(e CatalogEntry) (string, error) {
	search := &stripe.ProductSearchParams{}
	search.Query = fmt.Sprintf("name:'%s' AND active:'true'", e.Name)
	iter := product.Search(search)
	if iter.Next() {
		return iter.Product().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("search stripe products: %w", err)
	}

	p, err := product.New(&stripe.ProductParams{
		Name:        stripe.String(e.Name),
		Description: stripe.String(e.Description),
	})
	if err != nil {
		return "", fmt.Errorf("create stripe product %s: %w", e.Name, err)
	}
	return p.ID, nil
}
