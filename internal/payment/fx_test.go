package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUSD(t *testing.T) {
	t.Parallel()
	got := ToUSD(decimal.RequireFromString("1350"), decimal.RequireFromString("135"))
	assert.Equal(t, "10", got.String())

	got = ToUSD(decimal.RequireFromString("1000"), decimal.RequireFromString("135"))
	assert.Equal(t, "7.41", got.StringFixed(2))

	assert.True(t, ToUSD(decimal.NewFromInt(10), decimal.Zero).IsZero())
}

func TestHTTPRateSource_CachesAndFallsBack(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"rate": 140.5}`))
	}))
	defer srv.Close()

	now := time.Now()
	src := NewHTTPRateSource(srv.URL, time.Minute, NewStaticRate(135), srv.Client())
	src.now = func() time.Time { return now }
	ctx := context.Background()

	r, err := src.NPRPerUSD(ctx)
	require.NoError(t, err)
	assert.Equal(t, "140.5", r.String())

	_, err = src.NPRPerUSD(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	fail.Store(true)
	now = now.Add(2 * time.Minute)
	r, err = src.NPRPerUSD(ctx)
	require.NoError(t, err)
	assert.Equal(t, "140.5", r.String())
	assert.EqualValues(t, 2, calls.Load())
}

func TestHTTPRateSource_StaticFallback(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewHTTPRateSource(srv.URL, time.Minute, NewStaticRate(135), srv.Client())
	r, err := src.NPRPerUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "135", r.String())
}

func TestHTTPRateSource_SlowFetchIsShared(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"rate": 140.5}`))
	}))
	defer srv.Close()

	src := NewHTTPRateSource(srv.URL, time.Minute, NewStaticRate(135), srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r, err := src.NPRPerUSD(ctx)
	require.NoError(t, err)
	assert.Equal(t, "135", r.String(), "caller stops waiting and uses the static rate")

	var wg sync.WaitGroup
	got := make([]string, 5)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r, err := src.NPRPerUSD(context.Background()); err == nil {
				got[i] = r.String()
			}
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range got {
		assert.Equal(t, "140.5", v)
	}
	assert.EqualValues(t, 1, calls.Load())
}
