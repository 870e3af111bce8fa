package shipper_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"golang.org/x/oauth2"
)

var fastRetry = shipper.RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

func TestTokenCache_ReusesValidToken(t *testing.T) {
	var fetches atomic.Int32
	cache := shipper.NewTokenCache("pakpost", func(ctx context.Context) (*oauth2.Token, error) {
		fetches.Add(1)
		return &oauth2.Token{AccessToken: "tok-1", Expiry: time.Now().Add(time.Hour)}, nil
	}, time.Hour, fastRetry)

	ctx := context.Background()
	first, err := cache.Token(ctx)
	require.NoError(t, err)
	second, err := cache.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first.AccessToken)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestTokenCache_RefreshesExpiredToken(t *testing.T) {
	var fetches atomic.Int32
	cache := shipper.NewTokenCache("tcs", func(ctx context.Context) (*oauth2.Token, error) {
		n := fetches.Add(1)
		// The first token is already inside the expiry delta.
		expiry := time.Now().Add(time.Second)
		if n > 1 {
			expiry = time.Now().Add(time.Hour)
		}
		return &oauth2.Token{AccessToken: "tok", Expiry: expiry}, nil
	}, time.Hour, fastRetry)

	ctx := context.Background()
	_, err := cache.Token(ctx)
	require.NoError(t, err)
	_, err = cache.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), fetches.Load())
}

func TestTokenCache_AppliesTTLWhenNoExpiry(t *testing.T) {
	cache := shipper.NewTokenCache("tcs", func(ctx context.Context) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "tok"}, nil
	}, 10*time.Minute, fastRetry)

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), tok.Expiry, 5*time.Second)
}

func TestTokenCache_Invalidate(t *testing.T) {
	var fetches atomic.Int32
	cache := shipper.NewTokenCache("pakpost", func(ctx context.Context) (*oauth2.Token, error) {
		fetches.Add(1)
		return &oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
	}, time.Hour, fastRetry)

	ctx := context.Background()
	tok, err := cache.Token(ctx)
	require.NoError(t, err)

	cache.Invalidate(tok)

	next, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.NotSame(t, tok, next)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestTokenCache_InvalidateStaleTokenKeepsNewer(t *testing.T) {
	var fetches atomic.Int32
	cache := shipper.NewTokenCache("pakpost", func(ctx context.Context) (*oauth2.Token, error) {
		fetches.Add(1)
		return &oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
	}, time.Hour, fastRetry)

	ctx := context.Background()
	current, err := cache.Token(ctx)
	require.NoError(t, err)

	cache.Invalidate(&oauth2.Token{AccessToken: "older"})

	again, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Same(t, current, again)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestTokenCache_RetriesTransientFailures(t *testing.T) {
	var fetches atomic.Int32
	cache := shipper.NewTokenCache("tcs", func(ctx context.Context) (*oauth2.Token, error) {
		if fetches.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return &oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
	}, time.Hour, fastRetry)

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
	assert.Equal(t, int32(3), fetches.Load())
}

func TestTokenCache_RejectedCredentialsAreNotRetried(t *testing.T) {
	var fetches atomic.Int32
	cache := shipper.NewTokenCache("tcs", func(ctx context.Context) (*oauth2.Token, error) {
		fetches.Add(1)
		return nil, shipper.NewShipperError("tcs", shipper.ErrAuthenticationFailed, "HTTP_401", "bad credentials")
	}, time.Hour, fastRetry)

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shipper.ErrAuthenticationFailed)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestTokenCache_ExhaustedRetriesIsAuthError(t *testing.T) {
	cache := shipper.NewTokenCache("tcs", func(ctx context.Context) (*oauth2.Token, error) {
		return nil, errors.New("dial tcp: timeout")
	}, time.Hour, fastRetry)

	_, err := cache.Token(context.Background())
	assert.ErrorIs(t, err, shipper.ErrAuthenticationFailed)
}

func TestTokenCache_ConcurrentCallers(t *testing.T) {
	var refreshes atomic.Int32
	cache := shipper.NewTokenCache("pakpost", func(ctx context.Context) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
	}, time.Hour, fastRetry)
	cache.OnRefresh = func(string) { refreshes.Add(1) }

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok", tok.AccessToken)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, refreshes.Load(), int32(1))
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.True(t, tok.Valid())
}
