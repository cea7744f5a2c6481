package payment

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/storefront/internal/logging"
)

// RateSource yields how many NPR buy one USD.
type RateSource interface {
	NPRPerUSD(ctx context.Context) (decimal.Decimal, error)
}

type StaticRate decimal.Decimal

func NewStaticRate(nprPerUSD float64) StaticRate {
	return StaticRate(decimal.NewFromFloat(nprPerUSD))
}

func (s StaticRate) NPRPerUSD(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(s), nil
}

// HTTPRateSource polls a JSON endpoint returning {"rate": n} and caches the
// answer. Concurrent misses share one outbound fetch, and a caller whose
// context ends stops waiting for it. Failed refreshes fall back to the last
// good value, then to Fallback.
type HTTPRateSource struct {
	URL      string
	TTL      time.Duration
	Fallback RateSource

	client *apiClient
	now    func() time.Time
	group  singleflight.Group

	mu      sync.Mutex
	rate    decimal.Decimal
	fetched time.Time
}

func NewHTTPRateSource(url string, ttl time.Duration, fallback RateSource, hc *http.Client) *HTTPRateSource {
	return &HTTPRateSource{
		URL:      url,
		TTL:      ttl,
		Fallback: fallback,
		client:   newAPIClient(hc, nil),
		now:      time.Now,
	}
}

func (h *HTTPRateSource) NPRPerUSD(ctx context.Context) (decimal.Decimal, error) {
	h.mu.Lock()
	if !h.fetched.IsZero() && h.now().Sub(h.fetched) < h.TTL {
		r := h.rate
		h.mu.Unlock()
		return r, nil
	}
	h.mu.Unlock()

	ch := h.group.DoChan("rate", func() (any, error) {
		r, err := h.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.rate, h.fetched = r, h.now()
		h.mu.Unlock()
		return r, nil
	})

	var err error
	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(decimal.Decimal), nil
		}
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	logging.FromContext(ctx).Warn("fx_rate_refresh_failed", "url", h.URL, "error", err)
	h.mu.Lock()
	last, ok := h.rate, !h.fetched.IsZero()
	h.mu.Unlock()
	if ok {
		return last, nil
	}
	if h.Fallback != nil {
		return h.Fallback.NPRPerUSD(ctx)
	}
	return decimal.Zero, err
}

func (h *HTTPRateSource) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	var body struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := h.client.do(ctx, req, &body); err != nil {
		return decimal.Zero, err
	}
	if !body.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s", body.Rate)
	}
	return body.Rate, nil
}

// ToUSD converts an NPR amount and rounds to cents.
func ToUSD(npr, nprPerUSD decimal.Decimal) decimal.Decimal {
	if !nprPerUSD.IsPositive() {
		return decimal.Zero
	}
	return npr.DivRound(nprPerUSD, 2)
}
