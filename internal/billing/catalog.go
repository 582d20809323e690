package billing

import "github.com/dukerupert/galactic-archives/internal/model"

// CatalogEntry describes a subscription plan to provision in Stripe.
type CatalogEntry struct {
	Name        string
	Description string
	LookupKey   string
	Amount      int64 // minor units
	Currency    string
	Interval    string
}

var DefaultCatalog = []CatalogEntry{
	{
		Name:        "Pro",
		Description: "Unlimited notes and search across the archives.",
		LookupKey:   "pro_monthly",
		Amount:      900,
		Currency:    "usd",
		Interval:    "month",
	},
	{
		Name:        "Pro+",
		Description: "Everything in Pro plus priority support.",
		LookupKey:   "pro_plus_monthly",
		Amount:      1900,
		Currency:    "usd",
		Interval:    "month",
	},
}

func (e CatalogEntry) Product(priceID string) model.Product {
	return model.Product{
		Name:        e.Name,
		Description: e.Description,
		PriceID:     priceID,
		LookupKey:   e.LookupKey,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Interval:    e.Interval,
	}
}
