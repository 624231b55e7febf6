// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package payments

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// CheckoutRequest describes a hosted checkout session to create.
type CheckoutRequest struct {
	ProductName   string
	Description   string
	UnitAmount    int64
	Quantity      int64
	CustomerEmail string
	Metadata      map[string]string
}

// CheckoutSession is the subset of the provider session the API exposes.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// Client wraps the Stripe SDK. The API client is injected per instance, no
// global key.
type Client struct {
	api           *client.API
	webhookSecret string
	frontendURL   string
	currency      string
}

func NewClient(secretKey, webhookSecret, frontendURL, currency string) *Client {
	api := &client.API{}
	api.Init(secretKey, nil)

	if currency == "" {
		currency = "eur"
	}

	return &Client{
		api:           api,
		webhookSecret: webhookSecret,
		frontendURL:   frontendURL,
		currency:      currency,
	}
}

// IsConfigured reports whether webhook verification can work.
func (c *Client) IsConfigured() bool {
	return c.webhookSecret != ""
}

// VerifyWebhook checks the provider signature over the raw payload and
// returns the parsed event. This is the security boundary for the
// provisioning pipeline; nothing downstream runs on a bad signature.
func (c *Client) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return event, nil
}

// CreateCheckoutSession requests a hosted checkout session from Stripe.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(c.frontendURL + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(c.frontendURL + "/cancel"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(c.currency),
					UnitAmount: stripe.Int64(req.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(req.Quantity),
			},
		},
	}
	params.Context = ctx

	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		log.Error().Err(err).Str("product", req.ProductName).Msg("Failed to create checkout session")
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
