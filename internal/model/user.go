package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	StripeCustomerID string        `json:"-"`
	Subscription     *Subscription `json:"subscription,omitempty"`
}

// Subscription is the billing state cached from provider webhooks.
type Subscription struct {
	ID      string `json:"-"`
	Status  string `json:"status"`
	PriceID string `json:"price_id"`
}
