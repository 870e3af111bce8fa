package shipper

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
)

// TokenFetcher obtains a fresh access token from a carrier.
type TokenFetcher func(ctx context.Context) (*oauth2.Token, error)

// TokenCache holds one carrier access token. Callers share the cached token
// until it expires or the carrier rejects it. Refreshes are not coordinated:
// concurrent callers may both fetch, and the last write wins.
type TokenCache struct {
	carrier string
	fetch   TokenFetcher
	retry   RetryPolicy
	ttl     time.Duration
	current atomic.Pointer[oauth2.Token]

	// OnRefresh is invoked after every successful fetch.
	OnRefresh func(carrier string)
}

// NewTokenCache creates a token cache. ttl is applied to tokens the carrier
// returns without an expiry.
func NewTokenCache(carrier string, fetch TokenFetcher, ttl time.Duration, retry RetryPolicy) *TokenCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TokenCache{
		carrier: carrier,
		fetch:   fetch,
		retry:   retry,
		ttl:     ttl,
	}
}

// Token returns a valid token, fetching one when the cache is empty or stale.
func (c *TokenCache) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := c.current.Load(); tok.Valid() {
		return tok, nil
	}

	tok, err := Retry(ctx, c.retry, func() (*oauth2.Token, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		var shipperErr *ShipperError
		if errors.As(err, &shipperErr) {
			return nil, err
		}
		return nil, NewShipperError(c.carrier, ErrAuthenticationFailed, "TOKEN_FETCH", "could not obtain access token").
			WithCause(err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, NewShipperError(c.carrier, ErrAuthenticationFailed, "TOKEN_EMPTY", "carrier returned an empty access token")
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = time.Now().Add(c.ttl)
	}

	c.current.Store(tok)
	if c.OnRefresh != nil {
		c.OnRefresh(c.carrier)
	}
	return tok, nil
}

// Invalidate drops tok if it is still the cached token. A token that was
// already replaced by a concurrent refresh is left alone.
func (c *TokenCache) Invalidate(tok *oauth2.Token) {
	c.current.CompareAndSwap(tok, nil)
}
