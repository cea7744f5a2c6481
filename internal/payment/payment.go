package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/models"
)

var tracer = otel.Tracer("github.com/Skotchmaster/storefront/internal/payment")

// Initiation is what the storefront needs to send the shopper to the provider.
type Initiation struct {
	RedirectURL  string
	ProviderRef  string
	ClientSecret string
	Details      map[string]any
}

// Callback carries the identifiers a provider hands back after checkout.
type Callback struct {
	OrderID   string
	PaymentID string
	PayerID   string
	Pidx      string
	IntentID  string
}

type Verification struct {
	Success       bool
	TransactionID string
	Details       map[string]any
}

type Provider interface {
	Method() models.PaymentMethod
	Initiate(ctx context.Context, order *models.Order) (*Initiation, error)
	Verify(ctx context.Context, cb Callback) (*Verification, error)
}

type Registry struct {
	providers map[models.PaymentMethod]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.PaymentMethod]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Method()] = p
	}
	return r
}

func (r *Registry) Get(m models.PaymentMethod) (Provider, error) {
	p, ok := r.providers[m]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported payment method %q", apperr.ErrValidation, m)
	}
	return p, nil
}

// Options holds the URLs providers redirect the shopper back to.
type Options struct {
	PublicURL string
}

// NewDefaultRegistry builds every provider from configuration sharing one
// HTTP client and outbound rate limit.
func NewDefaultRegistry(cfg config.PaymentConfig, opts Options, rates RateSource) *Registry {
	hc := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond)

	return NewRegistry(
		Cash{},
		NewPayPal(PayPalConfig{BaseURL: cfg.PayPalBaseURL, ClientID: cfg.PayPalClientID, Secret: cfg.PayPalSecret, PublicURL: opts.PublicURL},
			newAPIClient(hc, limiter), rates),
		NewKhalti(KhaltiConfig{BaseURL: cfg.KhaltiBaseURL, SecretKey: cfg.KhaltiSecretKey, PublicURL: opts.PublicURL},
			newAPIClient(hc, limiter)),
		NewStripe(StripeConfig{BaseURL: cfg.StripeBaseURL, SecretKey: cfg.StripeSecretKey, Currency: cfg.StripeCurrency},
			newAPIClient(hc, limiter)),
	)
}
