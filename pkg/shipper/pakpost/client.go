// Package pakpost provides integration with the Pakistan Post VPP booking API.
package pakpost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	carrierName = "pakpost"

	courierService  = "Pakistan Post"
	deliveryService = "VPP"

	dateLayout = "2006-01-02"
	scanLayout = "2006-01-02 15:04"
)

// Config holds Pakistan Post configuration.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	UseMock      bool
	Timeout      time.Duration
	TokenTTL     time.Duration
	RateLimit    float64
	RateBurst    int
	Retry        shipper.RetryPolicy

	// OnTokenRefresh is called after each successful token fetch.
	OnTokenRefresh func(carrier string)
}

// Client is the Pakistan Post shipper client.
type Client struct {
	config    Config
	apiClient APIClient
	tokens    *shipper.TokenCache
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Pakistan Post client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:      cfg.BaseURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			RateBurst:    cfg.RateBurst,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Pakistan Post client with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/fulfillment/pkg/shipper/pakpost")
	}

	c := &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
	c.tokens = shipper.NewTokenCache(carrierName, c.fetchToken, cfg.TokenTTL, cfg.Retry)
	c.tokens.OnRefresh = cfg.OnTokenRefresh
	return c
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// QuoteFee returns the Pakistan Post tariff. The tariff depends on weight only,
// so any destination city is accepted.
func (c *Client) QuoteFee(ctx context.Context, req *shipper.FeeRequest) (fee *shipper.Fee, err error) {
	ctx, span := c.tracer.Start(ctx, "pakpost.QuoteFee",
		trace.WithAttributes(attribute.Int("weight_grams", req.WeightGrams)))
	defer func() { shipper.EndSpan(span, err) }()

	if req.WeightGrams <= 0 {
		return nil, fmt.Errorf("%w: weight must be positive", shipper.ErrInvalidPackage)
	}

	c.logger.Ctx(ctx).Info("Getting Pakistan Post tariff", zap.Int("weight_grams", req.WeightGrams))

	resp, err := shipper.Retry(ctx, c.config.Retry, func() (*TariffResponse, error) {
		return withToken(ctx, c, true, func(token string) (*TariffResponse, error) {
			return c.apiClient.GetTariff(ctx, token, &TariffRequest{WeightInGrams: req.WeightGrams})
		})
	})
	if err != nil {
		c.logger.Ctx(ctx).Error("Pakistan Post API error", zap.Error(err))
		return nil, err
	}

	if resp.Status != 200 {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "TARIFF_REJECTED",
			firstNonEmpty(resp.Message, "failed to get tariff"))
	}

	raw, _ := json.Marshal(resp)
	return &shipper.Fee{
		Carrier: carrierName,
		City:    req.City,
		Total:   shipper.PKR(resp.TotalCharges),
		Raw:     raw,
	}, nil
}

// BookShipment books a VPP article with Pakistan Post. It is never retried.
func (c *Client) BookShipment(ctx context.Context, req *shipper.ShipmentRequest) (booking *shipper.Booking, err error) {
	ctx, span := c.tracer.Start(ctx, "pakpost.BookShipment",
		trace.WithAttributes(attribute.String("reference", req.Reference)))
	defer func() { shipper.EndSpan(span, err) }()

	c.logger.Ctx(ctx).Info("Booking Pakistan Post article",
		zap.String("reference", req.Reference),
		zap.String("city", req.Consignee.City),
		zap.Int("weight_grams", req.WeightGrams),
	)

	bookedAt := req.BookedAt
	if bookedAt.IsZero() {
		bookedAt = time.Now()
	}

	apiReq := &TransactionRequest{
		Name:            req.Consignee.Name,
		Address:         req.Consignee.Address,
		City:            req.Consignee.City,
		Contact:         req.Consignee.Phone,
		TransactionID:   req.Reference,
		TransactionDate: bookedAt.In(shipper.PakistanTime).Format(dateLayout),
		CourierService:  courierService,
		DeliveryService: deliveryService,
		WeightInGrams:   req.WeightGrams,
	}
	if req.CODAmount.IsPositive() {
		apiReq.Amount = req.CODAmount.StringFixed(2)
	}

	resp, err := withToken(ctx, c, false, func(token string) (*TransactionResponse, error) {
		return c.apiClient.CreateTransaction(ctx, token, apiReq)
	})
	if err != nil {
		c.logger.Ctx(ctx).Error("Pakistan Post booking failed",
			zap.String("reference", req.Reference), zap.Error(err))
		return nil, err
	}

	raw, _ := json.Marshal(resp)

	if resp.Status != 200 {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrBookingFailed, "BOOKING_REJECTED",
			firstNonEmpty(resp.Message, "booking failed"))
	}

	trackingNo := resp.TrackingNo()
	if trackingNo == "" {
		// Accepted but unusable: the booking exists without a tracking number.
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "TRACKING_MISSING",
			"booking response has no article tracking number").WithOutcomeUnknown()
	}

	return &shipper.Booking{
		Carrier:    carrierName,
		BookingID:  string(resp.OrderID),
		TrackingID: trackingNo,
		Reference:  req.Reference,
		Raw:        raw,
	}, nil
}

// TrackShipment returns the raw Pakistan Post tracking document.
func (c *Client) TrackShipment(ctx context.Context, trackingID string) (raw *shipper.RawTracking, err error) {
	ctx, span := c.tracer.Start(ctx, "pakpost.TrackShipment",
		trace.WithAttributes(attribute.String("tracking_id", trackingID)))
	defer func() { shipper.EndSpan(span, err) }()

	body, err := shipper.Retry(ctx, c.config.Retry, func() (json.RawMessage, error) {
		return withToken(ctx, c, true, func(token string) (json.RawMessage, error) {
			return c.apiClient.GetTracking(ctx, token, trackingID)
		})
	})
	if err != nil {
		if !errors.Is(err, shipper.ErrTrackingNotFound) {
			c.logger.Ctx(ctx).Error("Pakistan Post tracking failed",
				zap.String("tracking_id", trackingID), zap.Error(err))
		}
		return nil, err
	}

	return &shipper.RawTracking{
		Carrier:    carrierName,
		TrackingID: trackingID,
		StatusCode: 200,
		Body:       body,
	}, nil
}

// Normalize maps a Pakistan Post tracking document onto the canonical model.
func (c *Client) Normalize(raw *shipper.RawTracking) (*shipper.Tracking, error) {
	var doc TrackingResponse
	if err := json.Unmarshal(raw.Body, &doc); err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "TRACKING_DECODE",
			"unparseable tracking document").WithCause(err)
	}

	if doc.Status != 200 {
		if doc.Status == 404 || isNotFoundMessage(doc.Message) {
			return shipper.NotFoundTracking(carrierName, raw.TrackingID), nil
		}
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "TRACKING_REJECTED",
			firstNonEmpty(doc.Message, "tracking failed"))
	}

	tracking := &shipper.Tracking{
		Carrier:     carrierName,
		TrackingID:  raw.TrackingID,
		Status:      shipper.TrackingBooked,
		Checkpoints: make([]shipper.Checkpoint, 0, len(doc.TrackingDetails)),
	}

	for _, ev := range doc.TrackingDetails {
		tracking.Checkpoints = append(tracking.Checkpoints, shipper.Checkpoint{
			Time:        parseScanTime(ev.Date),
			Location:    ev.Location,
			Description: strings.TrimSpace(strings.Join(nonEmpty(ev.Status, ev.Remarks), " - ")),
		})
	}

	tracking.LastCheckpoint = shipper.LatestCheckpoint(tracking.Checkpoints)
	switch {
	case doc.CurrentStatus != "":
		tracking.Status = shipper.ClassifyScan(doc.CurrentStatus)
	case tracking.LastCheckpoint != nil:
		tracking.Status = shipper.ClassifyScan(tracking.LastCheckpoint.Description)
	}

	if t := parseScanTime(doc.DeliveryDate); !t.IsZero() {
		tracking.Delivery = &t
		tracking.DeliveryActual = tracking.Status == shipper.TrackingDelivered
	} else if tracking.Status == shipper.TrackingDelivered && tracking.LastCheckpoint != nil {
		t := tracking.LastCheckpoint.Time
		tracking.Delivery = &t
		tracking.DeliveryActual = true
	}

	return tracking, nil
}

func (c *Client) fetchToken(ctx context.Context) (*oauth2.Token, error) {
	resp, err := c.apiClient.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{
		AccessToken: resp.Content.Token.AccessToken,
		TokenType:   "Bearer",
	}
	if resp.Content.Token.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(resp.Content.Token.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// withToken runs call with a cached token. A rejected token is dropped from
// the cache; when retryOnReject is set the call is repeated once with a
// fresh token.
func withToken[T any](ctx context.Context, c *Client, retryOnReject bool, call func(token string) (T, error)) (T, error) {
	var zero T

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return zero, err
	}

	res, err := call(tok.AccessToken)
	if err == nil || !errors.Is(err, shipper.ErrAuthenticationFailed) {
		return res, err
	}

	c.tokens.Invalidate(tok)
	c.logger.Ctx(ctx).Warn("Pakistan Post rejected access token", zap.Bool("retrying", retryOnReject))
	if !retryOnReject {
		return zero, err
	}

	tok, err = c.tokens.Token(ctx)
	if err != nil {
		return zero, err
	}
	return call(tok.AccessToken)
}

func parseScanTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{scanLayout, "2006-01-02 15:04:05", time.RFC3339, dateLayout, "02/01/2006 15:04", "02-01-2006"} {
		if t, err := time.ParseInLocation(layout, s, shipper.PakistanTime); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isNotFoundMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "not found") || strings.Contains(m, "no record") || strings.Contains(m, "invalid article")
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}
