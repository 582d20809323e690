package model

// Product maps a human-chosen lookup key to a billing provider price.
type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceID     string `json:"price_id"`
	LookupKey   string `json:"lookup_key"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
}
