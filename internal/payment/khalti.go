package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
)

const khaltiCompleted = "Completed"

type KhaltiConfig struct {
	BaseURL   string
	SecretKey string
	PublicURL string
}

type Khalti struct {
	cfg    KhaltiConfig
	client *apiClient
}

func NewKhalti(cfg KhaltiConfig, client *apiClient) *Khalti {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Khalti{cfg: cfg, client: client}
}

func (k *Khalti) Method() models.PaymentMethod { return models.PaymentKhalti }

func (k *Khalti) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+k.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	return k.client.do(ctx, req, out)
}

func (k *Khalti) Initiate(ctx context.Context, order *models.Order) (*Initiation, error) {
	ctx, span := tracer.Start(ctx, "khalti.initiate")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", order.ID.String()), attribute.String("payment.method", "Khalti"))

	l := logging.FromContext(ctx).With("provider", "khalti", "order_id", order.ID.String())

	paisa := order.TotalAmount.Shift(2).Round(0).IntPart()
	returnURL := k.cfg.PublicURL + "/payments/complete-khalti-payment?" + url.Values{
		"orderId": {order.ID.String()},
		"userId":  {order.UserID.String()},
	}.Encode()

	body := map[string]any{
		"return_url":          returnURL,
		"website_url":         k.cfg.PublicURL,
		"amount":              paisa,
		"purchase_order_id":   order.ID.String(),
		"purchase_order_name": fmt.Sprintf("Order %s", order.ID),
	}

	var out struct {
		Pidx       string `json:"pidx"`
		PaymentURL string `json:"payment_url"`
		ExpiresAt  string `json:"expires_at"`
	}
	if err := k.post(ctx, "/epayment/initiate/", body, &out); err != nil {
		l.Error("khalti_initiate_failed", "error", err)
		return nil, apperr.ErrPaymentInitialization
	}
	if out.Pidx == "" || out.PaymentURL == "" {
		l.Error("khalti_initiate_failed", "reason", "missing pidx or payment_url")
		return nil, apperr.ErrPaymentInitialization
	}

	return &Initiation{
		RedirectURL: out.PaymentURL,
		ProviderRef: out.Pidx,
		Details: map[string]any{
			"khalti_pidx":       out.Pidx,
			"amount_paisa":      paisa,
			"khalti_expires_at": out.ExpiresAt,
		},
	}, nil
}

func (k *Khalti) Verify(ctx context.Context, cb Callback) (*Verification, error) {
	ctx, span := tracer.Start(ctx, "khalti.verify")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cb.OrderID), attribute.String("payment.method", "Khalti"))

	l := logging.FromContext(ctx).With("provider", "khalti", "order_id", cb.OrderID, "pidx", cb.Pidx)

	if cb.Pidx == "" {
		return nil, fmt.Errorf("%w: pidx is required", apperr.ErrValidation)
	}

	var out struct {
		Pidx          string `json:"pidx"`
		TotalAmount   int64  `json:"total_amount"`
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
		Fee           int64  `json:"fee"`
		Refunded      bool   `json:"refunded"`
	}
	if err := k.post(ctx, "/epayment/lookup/", map[string]string{"pidx": cb.Pidx}, &out); err != nil {
		l.Error("khalti_verify_failed", "error", err)
		return nil, apperr.ErrPaymentVerification
	}

	return &Verification{
		Success:       out.Status == khaltiCompleted && !out.Refunded,
		TransactionID: out.TransactionID,
		Details: map[string]any{
			"khalti_pidx":   out.Pidx,
			"khalti_status": out.Status,
			"amount_paisa":  out.TotalAmount,
			"fee_paisa":     out.Fee,
		},
	}, nil
}
