package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/apperr"
)

func TestRefreshTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		rc, err := r.Cookie("refreshToken")
		require.NoError(t, err)
		switch rc.Value {
		case "good":
			_ = json.NewEncoder(w).Encode(RefreshResponse{AccessToken: "a2", RefreshToken: "r2", AccessExp: 10, RefreshExp: 20})
		case "empty":
			_ = json.NewEncoder(w).Encode(RefreshResponse{})
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithHTTPClient(&http.Client{Timeout: time.Second}))
	ctx := context.Background()

	resp, err := c.RefreshTokens(ctx, "good", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a2", resp.AccessToken)
	assert.EqualValues(t, 20, resp.RefreshExp)

	_, err = c.RefreshTokens(ctx, "bad", "a1")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.ErrorContains(t, err, "401")

	_, err = c.RefreshTokens(ctx, "empty", "a1")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = c.RefreshTokens(ctx, "boom", "a1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrUnauthorized)
	assert.ErrorContains(t, err, "upstream down")
}
