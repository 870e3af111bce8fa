package tcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper"
	"golang.org/x/time/rate"
)

const (
	tokenPath    = "/ecom/api/authentication/token"
	bookingPath  = "/ecom/api/booking/create"
	trackingPath = "/tracking/api/Tracking/GetDynamicTrackDetail"

	// DefaultFeePath is the fee simulation endpoint.
	DefaultFeePath = "/ecom/api/booking/simulate"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL     string
	feePath     string
	username    string
	password    string
	bearerToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL     string
	FeePath     string
	Username    string
	Password    string
	BearerToken string // static ecom token sent in the Authorization header
	Timeout     time.Duration
	RateLimit   float64
	RateBurst   int
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	feePath := cfg.FeePath
	if feePath == "" {
		feePath = DefaultFeePath
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
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		feePath:     feePath,
		username:    cfg.Username,
		password:    cfg.Password,
		bearerToken: cfg.BearerToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// GetAccessToken exchanges the account credentials for a body access token.
// GET /ecom/api/authentication/token?username=&password=
func (c *HTTPAPIClient) GetAccessToken(ctx context.Context) (*TokenResponse, error) {
	if c.bearerToken == "" {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrAuthenticationFailed, "BEARER_MISSING",
			"ecom bearer token is not configured")
	}

	q := url.Values{}
	q.Set("username", c.username)
	q.Set("password", c.password)

	resp, err := c.doRequest(ctx, http.MethodGet, tokenPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, shipper.HTTPStatusError(carrierName, resp.StatusCode, shipper.ErrAuthenticationFailed,
			messageOf(body, "access token fetch failed"))
	}

	var result TokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrAuthenticationFailed, "TOKEN_DECODE",
			"invalid JSON from access token API").WithStatusCode(resp.StatusCode).WithCause(err)
	}
	if result.AccessToken == "" {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrAuthenticationFailed, "TOKEN_MISSING",
			firstNonEmpty(result.Message, "access token fetch failed")).WithStatusCode(resp.StatusCode)
	}

	return &result, nil
}

// CreateBooking books a consignment.
// POST /ecom/api/booking/create
func (c *HTTPAPIClient) CreateBooking(ctx context.Context, req *BookingRequest) (*BookingResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, bookingPath, req)
	if errors.Is(err, errNotSent) {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrBookingFailed, "NOT_SENT",
			"booking request was not sent").WithCause(err)
	}
	if err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrBookingFailed, "OUTCOME_UNKNOWN",
			"booking request did not complete").WithCause(err).WithOutcomeUnknown()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := c.parseError(resp, shipper.ErrBookingFailed)
		if resp.StatusCode >= 500 {
			apiErr.WithOutcomeUnknown()
		}
		return nil, apiErr
	}

	var result BookingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "BOOKING_DECODE",
			"could not parse TCS booking response").WithStatusCode(resp.StatusCode).WithCause(err).WithOutcomeUnknown()
	}

	return &result, nil
}

// SimulateFee prices a consignment without booking it.
func (c *HTTPAPIClient) SimulateFee(ctx context.Context, req *BookingRequest) (*BookingResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, c.feePath, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseError(resp, shipper.ErrProviderProtocol)
	}

	var result BookingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "FEE_DECODE",
			"TCS did not return valid JSON").WithStatusCode(resp.StatusCode).WithCause(err)
	}

	return &result, nil
}

// GetTracking returns the raw tracking document of a consignment.
// GET /tracking/api/Tracking/GetDynamicTrackDetail?consignee={cn}
func (c *HTTPAPIClient) GetTracking(ctx context.Context, consignmentNo string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("consignee", consignmentNo)

	resp, err := c.doRequest(ctx, http.MethodGet, trackingPath+"?"+q.Encode(), nil)
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
			"TCS did not return valid JSON").WithStatusCode(resp.StatusCode)
	}

	return body, nil
}

// errNotSent marks failures that happened before the request left the process.
var errNotSent = errors.New("request not sent")

// doRequest performs an HTTP request with the static bearer token.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
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

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("User-Agent", "tournevent-fulfillment/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response, kind error) *shipper.ShipperError {
	body, _ := io.ReadAll(resp.Body)
	return shipper.HTTPStatusError(carrierName, resp.StatusCode, kind, messageOf(body, string(body)))
}

func messageOf(body []byte, fallback string) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return fallback
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
