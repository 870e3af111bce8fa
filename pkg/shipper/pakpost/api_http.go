package pakpost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper"
	"golang.org/x/time/rate"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RateLimit    float64 // requests per second, 0 disables throttling
	RateBurst    int
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &HTTPAPIClient{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// GetToken exchanges the client credentials for an access token.
// POST /Token
func (c *HTTPAPIClient) GetToken(ctx context.Context) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/Token", "", &TokenRequest{
		ClientID:        c.clientID,
		ClientSecretKey: c.clientSecret,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var result TokenResponse
	decodeErr := json.Unmarshal(body, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := firstNonEmpty(result.ExceptionMessage, result.Message, "token fetch failed")
		return nil, shipper.HTTPStatusError(carrierName, resp.StatusCode, shipper.ErrAuthenticationFailed, msg)
	}
	if decodeErr != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrAuthenticationFailed, "TOKEN_DECODE",
			"invalid JSON from token API").WithStatusCode(resp.StatusCode).WithCause(decodeErr)
	}
	if result.Content.Token.AccessToken == "" {
		msg := firstNonEmpty(result.ExceptionMessage, result.Message, "token fetch failed")
		return nil, shipper.NewShipperError(carrierName, shipper.ErrAuthenticationFailed, "TOKEN_MISSING", msg).
			WithStatusCode(resp.StatusCode)
	}

	return &result, nil
}

// CreateTransaction books a VPP article.
// POST /Transaction
func (c *HTTPAPIClient) CreateTransaction(ctx context.Context, token string, req *TransactionRequest) (*TransactionResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/Transaction", token, req)
	if errors.Is(err, errNotSent) {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrBookingFailed, "NOT_SENT",
			"booking request was not sent").WithCause(err)
	}
	if err != nil {
		// The request may have been delivered before the failure.
		return nil, shipper.NewShipperError(carrierName, shipper.ErrBookingFailed, "OUTCOME_UNKNOWN",
			"booking request did not complete").WithCause(err).WithOutcomeUnknown()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := c.parseError(resp, shipper.ErrBookingFailed)
		if resp.StatusCode >= 500 {
			// A gateway failure says nothing about whether the article was booked.
			apiErr.WithOutcomeUnknown()
		}
		return nil, apiErr
	}

	var result TransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "BOOKING_DECODE",
			"unparseable booking response").WithStatusCode(resp.StatusCode).WithCause(err).WithOutcomeUnknown()
	}

	return &result, nil
}

// GetTariff returns the delivery charge for a weight.
// POST /GetTariff
func (c *HTTPAPIClient) GetTariff(ctx context.Context, token string, req *TariffRequest) (*TariffResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/GetTariff", token, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseError(resp, shipper.ErrProviderProtocol)
	}

	var result TariffResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "TARIFF_DECODE",
			"unparseable tariff response").WithStatusCode(resp.StatusCode).WithCause(err)
	}

	return &result, nil
}

// GetTracking returns the raw tracking document of an article.
// GET /GetTracking/{article}
func (c *HTTPAPIClient) GetTracking(ctx context.Context, token string, articleNo string) (json.RawMessage, error) {
	path := "/GetTracking/" + url.PathEscape(articleNo)

	resp, err := c.doRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseError(resp, shipper.ErrTrackingNotFound)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking response: %w", err)
	}
	if !json.Valid(body) {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "TRACKING_DECODE",
			"tracking response is not JSON").WithStatusCode(resp.StatusCode)
	}

	return body, nil
}

// errNotSent marks failures that happened before the request left the process.
var errNotSent = errors.New("request not sent")

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path, token string, body interface{}) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: throttled: %w", errNotSent, err)
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal request body: %w", errNotSent, err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", errNotSent, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "tournevent-fulfillment/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response, kind error) *shipper.ShipperError {
	body, _ := io.ReadAll(resp.Body)

	var apiErr struct {
		Message          string `json:"message"`
		ExceptionMessage string `json:"ExceptionMessage"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &apiErr); err == nil {
		msg = firstNonEmpty(apiErr.ExceptionMessage, apiErr.Message, msg)
	}

	return shipper.HTTPStatusError(carrierName, resp.StatusCode, kind, msg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
