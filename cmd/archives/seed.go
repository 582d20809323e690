package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/galactic-archives/internal/billing"
)

func seedCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-products",
		Short: "Create the subscription catalog in Stripe and record it in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if !cfg.BillingEnabled() {
				return errors.New("STRIPE_SECRET_KEY is required")
			}

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			client := billing.NewClient(billing.Config{
				SecretKey:     cfg.StripeSecretKey,
				WebhookSecret: cfg.StripeWebhookSecret,
				FrontendURL:   cfg.FrontendURL,
			})
			svc := billing.NewService(client, st.Users(), st.Products(), nil, logger)

			products, err := svc.SeedCatalog(cmd.Context(), billing.DefaultCatalog)
			for _, p := range products {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %-10s %s %d %s/%s\n", p.LookupKey, p.Name, p.PriceID, p.Amount, p.Currency, p.Interval)
			}
			return err
		},
	}
}
