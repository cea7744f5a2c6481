package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
)

const intentSucceeded = "succeeded"

type StripeConfig struct {
	BaseURL   string
	SecretKey string
	Currency  string
}

// Stripe drives card payments through payment intents.
type Stripe struct {
	cfg    StripeConfig
	client *apiClient
}

func NewStripe(cfg StripeConfig, client *apiClient) *Stripe {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "npr"
	}
	return &Stripe{cfg: cfg, client: client}
}

func (s *Stripe) Method() models.PaymentMethod { return models.PaymentStripe }

type paymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	LatestCharge string `json:"latest_charge"`
	Metadata     struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

func (s *Stripe) Initiate(ctx context.Context, order *models.Order) (*Initiation, error) {
	ctx, span := tracer.Start(ctx, "stripe.initiate")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", order.ID.String()), attribute.String("payment.method", "Stripe"))

	l := logging.FromContext(ctx).With("provider", "stripe", "order_id", order.ID.String())

	minor := order.TotalAmount.Shift(2).Round(0).IntPart()
	form := url.Values{
		"amount":                             {strconv.FormatInt(minor, 10)},
		"currency":                           {s.cfg.Currency},
		"metadata[order_id]":                 {order.ID.String()},
		"metadata[user_id]":                  {order.UserID.String()},
		"automatic_payment_methods[enabled]": {"true"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperr.ErrPaymentInitialization
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", order.ID.String())

	var pi paymentIntent
	if err := s.client.do(ctx, req, &pi); err != nil {
		l.Error("stripe_initiate_failed", "error", err)
		return nil, apperr.ErrPaymentInitialization
	}
	if pi.ID == "" || pi.ClientSecret == "" {
		l.Error("stripe_initiate_failed", "reason", "missing intent id or client secret")
		return nil, apperr.ErrPaymentInitialization
	}

	return &Initiation{
		ProviderRef:  pi.ID,
		ClientSecret: pi.ClientSecret,
		Details: map[string]any{
			"stripe_intent_id": pi.ID,
			"amount_minor":     minor,
			"currency":         s.cfg.Currency,
		},
	}, nil
}

func (s *Stripe) Verify(ctx context.Context, cb Callback) (*Verification, error) {
	ctx, span := tracer.Start(ctx, "stripe.verify")
	defer span.End()
	span.SetAttributes(attribute.String("payment.intent", cb.IntentID), attribute.String("payment.method", "Stripe"))

	l := logging.FromContext(ctx).With("provider", "stripe", "intent_id", cb.IntentID)

	if cb.IntentID == "" {
		return nil, fmt.Errorf("%w: intentId is required", apperr.ErrValidation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/v1/payment_intents/"+url.PathEscape(cb.IntentID), nil)
	if err != nil {
		return nil, apperr.ErrPaymentVerification
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)

	var pi paymentIntent
	if err := s.client.do(ctx, req, &pi); err != nil {
		l.Error("stripe_verify_failed", "error", err)
		return nil, apperr.ErrPaymentVerification
	}

	txID := pi.LatestCharge
	if txID == "" {
		txID = pi.ID
	}
	return &Verification{
		Success:       pi.Status == intentSucceeded,
		TransactionID: txID,
		Details: map[string]any{
			"stripe_intent_id": pi.ID,
			"stripe_status":    pi.Status,
			"amount_minor":     pi.Amount,
		},
	}, nil
}
