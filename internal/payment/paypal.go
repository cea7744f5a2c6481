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

// DetailApprovalToken is the TransactionDetails key holding the token PayPal
// appends to both redirect URLs of a payment.
const DetailApprovalToken = "approval_token"

type PayPalConfig struct {
	BaseURL   string
	ClientID  string
	Secret    string
	PublicURL string
}

type PayPal struct {
	cfg    PayPalConfig
	client *apiClient
	rates  RateSource
}

func NewPayPal(cfg PayPalConfig, client *apiClient, rates RateSource) *PayPal {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &PayPal{cfg: cfg, client: client, rates: rates}
}

func (p *PayPal) Method() models.PaymentMethod { return models.PaymentPayPal }

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalPayment struct {
	ID    string       `json:"id"`
	State string       `json:"state"`
	Links []paypalLink `json:"links"`
	Payer struct {
		PayerInfo struct {
			Email string `json:"email"`
		} `json:"payer_info"`
	} `json:"payer"`
	Transactions []struct {
		RelatedResources []struct {
			Sale struct {
				ID string `json:"id"`
			} `json:"sale"`
		} `json:"related_resources"`
	} `json:"transactions"`
}

func (p *PayPal) token(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := p.client.do(ctx, req, &out); err != nil {
		return "", fmt.Errorf("oauth token: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("oauth token: empty access token")
	}
	return out.AccessToken, nil
}

func (p *PayPal) postJSON(ctx context.Context, token, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return p.client.do(ctx, req, out)
}

func (p *PayPal) returnURLs(order *models.Order) (string, string) {
	ids := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.ProductID.String())
	}
	q := url.Values{
		"orderId":    {order.ID.String()},
		"userId":     {order.UserID.String()},
		"productIds": {strings.Join(ids, ",")},
	}
	success := p.cfg.PublicURL + "/order/paypal/success?" + q.Encode()
	cancel := p.cfg.PublicURL + "/order/paypal/cancel?" + url.Values{
		"orderId": {order.ID.String()},
		"userId":  {order.UserID.String()},
	}.Encode()
	return success, cancel
}

func (p *PayPal) Initiate(ctx context.Context, order *models.Order) (*Initiation, error) {
	ctx, span := tracer.Start(ctx, "paypal.initiate")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", order.ID.String()), attribute.String("payment.method", "PayPal"))

	l := logging.FromContext(ctx).With("provider", "paypal", "order_id", order.ID.String())

	rate, err := p.rates.NPRPerUSD(ctx)
	if err != nil {
		l.Error("paypal_rate_unavailable", "error", err)
		return nil, apperr.ErrPaymentInitialization
	}
	usd := ToUSD(order.TotalAmount, rate)

	tok, err := p.token(ctx)
	if err != nil {
		l.Error("paypal_initiate_failed", "stage", "token", "error", err)
		return nil, apperr.ErrPaymentInitialization
	}

	success, cancel := p.returnURLs(order)
	body := map[string]any{
		"intent": "sale",
		"payer":  map[string]any{"payment_method": "paypal"},
		"redirect_urls": map[string]string{
			"return_url": success,
			"cancel_url": cancel,
		},
		"transactions": []map[string]any{{
			"amount": map[string]string{
				"total":    usd.StringFixed(2),
				"currency": "USD",
			},
			"description": "Order " + order.ID.String(),
			"custom":      order.ID.String(),
		}},
	}

	var created paypalPayment
	if err := p.postJSON(ctx, tok, "/v1/payments/payment", body, &created); err != nil {
		l.Error("paypal_initiate_failed", "stage", "create", "error", err)
		return nil, apperr.ErrPaymentInitialization
	}

	var approval string
	for _, link := range created.Links {
		if link.Rel == "approval_url" {
			approval = link.Href
			break
		}
	}
	if created.ID == "" || approval == "" {
		l.Error("paypal_initiate_failed", "stage", "create", "reason", "missing approval link")
		return nil, apperr.ErrPaymentInitialization
	}

	details := map[string]any{
		"paypal_payment_id": created.ID,
		"amount_usd":        usd.StringFixed(2),
		"npr_per_usd":       rate.String(),
	}
	if u, err := url.Parse(approval); err == nil && u.Query().Get("token") != "" {
		details[DetailApprovalToken] = u.Query().Get("token")
	}
	return &Initiation{
		RedirectURL: approval,
		ProviderRef: created.ID,
		Details:     details,
	}, nil
}

func (p *PayPal) Verify(ctx context.Context, cb Callback) (*Verification, error) {
	ctx, span := tracer.Start(ctx, "paypal.verify")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cb.OrderID), attribute.String("payment.method", "PayPal"))

	l := logging.FromContext(ctx).With("provider", "paypal", "order_id", cb.OrderID, "payment_id", cb.PaymentID)

	if cb.PaymentID == "" || cb.PayerID == "" {
		return nil, fmt.Errorf("%w: paymentId and PayerID are required", apperr.ErrValidation)
	}

	tok, err := p.token(ctx)
	if err != nil {
		l.Error("paypal_verify_failed", "stage", "token", "error", err)
		return nil, apperr.ErrPaymentVerification
	}

	var executed paypalPayment
	path := "/v1/payments/payment/" + url.PathEscape(cb.PaymentID) + "/execute"
	if err := p.postJSON(ctx, tok, path, map[string]string{"payer_id": cb.PayerID}, &executed); err != nil {
		l.Error("paypal_verify_failed", "stage", "execute", "error", err)
		return nil, apperr.ErrPaymentVerification
	}

	txID := executed.ID
	if len(executed.Transactions) > 0 && len(executed.Transactions[0].RelatedResources) > 0 {
		if sale := executed.Transactions[0].RelatedResources[0].Sale.ID; sale != "" {
			txID = sale
		}
	}

	return &Verification{
		Success:       executed.State == "approved",
		TransactionID: txID,
		Details: map[string]any{
			"paypal_payment_id": executed.ID,
			"paypal_state":      executed.State,
			"payer_id":          cb.PayerID,
			"payer_email":       executed.Payer.PayerInfo.Email,
		},
	}, nil
}
