// Package tcs provides integration with the TCS ecom booking and tracking API.
package tcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	carrierName = "tcs"

	countryCode = "PK"
	countryName = "Pakistan"

	costCenterCode = "01"
	serviceCode    = "O"
	parameterType  = "Weight"

	shipmentDateLayout = "02/01/2006 15:04:05"
	scanLayout         = "2006-01-02 15:04:05"
)

// Sender identifies the TCS account holder on bookings.
type Sender struct {
	Name     string
	Address  string
	City     string
	Province string
	Zip      string
	Mobile   string
}

// DefaultSender is used when Config.Sender has no name.
var DefaultSender = Sender{
	Name:     "Raasid Store",
	Address:  "Main GT Road",
	City:     "NOWSHERA",
	Province: "KPK",
	Zip:      "24110",
	Mobile:   "03000000000",
}

// Config holds TCS configuration.
type Config struct {
	BaseURL     string
	Username    string
	Password    string
	AccountNo   string
	BearerToken string
	FeePath     string
	UseMock     bool
	Timeout     time.Duration
	TokenTTL    time.Duration
	RateLimit   float64
	RateBurst   int
	Retry       shipper.RetryPolicy
	Sender      Sender

	// OnTokenRefresh is called after each successful token fetch.
	OnTokenRefresh func(carrier string)
}

// Client is the TCS shipper client.
type Client struct {
	config    Config
	apiClient APIClient
	tokens    *shipper.TokenCache
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new TCS client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://connect.tcscourier.com"
		}
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:     baseURL,
			FeePath:     cfg.FeePath,
			Username:    cfg.Username,
			Password:    cfg.Password,
			BearerToken: cfg.BearerToken,
			Timeout:     cfg.Timeout,
			RateLimit:   cfg.RateLimit,
			RateBurst:   cfg.RateBurst,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new TCS client with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/fulfillment/pkg/shipper/tcs")
	}
	if cfg.Sender.Name == "" {
		cfg.Sender = DefaultSender
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

// QuoteFee simulates a booking to price delivery to req.City.
func (c *Client) QuoteFee(ctx context.Context, req *shipper.FeeRequest) (fee *shipper.Fee, err error) {
	ctx, span := c.tracer.Start(ctx, "tcs.QuoteFee",
		trace.WithAttributes(
			attribute.String("city", req.City),
			attribute.Int("weight_grams", req.WeightGrams),
		))
	defer func() { shipper.EndSpan(span, err) }()

	if req.WeightGrams <= 0 {
		return nil, fmt.Errorf("%w: weight must be positive", shipper.ErrInvalidPackage)
	}
	if _, ok := CityCode(req.City); !ok {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrUnsupportedDestination, "CITY_UNMAPPED",
			fmt.Sprintf("no TCS station for %q", req.City))
	}

	c.logger.Ctx(ctx).Info("Getting TCS fee",
		zap.String("city", req.City), zap.Int("weight_grams", req.WeightGrams))

	shipment := &shipper.ShipmentRequest{
		Reference:   "FEE-" + strings.ToUpper(req.City),
		Consignee:   shipper.Consignee{Name: "Fee Enquiry", Address: req.City, City: req.City, Phone: c.config.Sender.Mobile},
		WeightGrams: req.WeightGrams,
	}

	resp, err := shipper.Retry(ctx, c.config.Retry, func() (*BookingResponse, error) {
		return withToken(ctx, c, true, func(token string) (*BookingResponse, error) {
			return rejectStaleToken(c.apiClient.SimulateFee(ctx, c.bookingRequest(token, shipment)))
		})
	})
	if err != nil {
		c.logger.Ctx(ctx).Error("TCS API error", zap.Error(err))
		return nil, err
	}

	amount, ok := resp.charge()
	if !ok {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "FEE_MISSING",
			firstNonEmpty(resp.Message, "fee response has no charge amount"))
	}

	raw, _ := json.Marshal(resp)
	return &shipper.Fee{
		Carrier: carrierName,
		City:    req.City,
		Total:   shipper.PKR(amount),
		Raw:     raw,
	}, nil
}

// BookShipment books a TCS consignment. It is never retried.
func (c *Client) BookShipment(ctx context.Context, req *shipper.ShipmentRequest) (booking *shipper.Booking, err error) {
	ctx, span := c.tracer.Start(ctx, "tcs.BookShipment",
		trace.WithAttributes(attribute.String("reference", req.Reference)))
	defer func() { shipper.EndSpan(span, err) }()

	if _, ok := CityCode(req.Consignee.City); !ok {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrUnsupportedDestination, "CITY_UNMAPPED",
			fmt.Sprintf("no TCS station for %q", req.Consignee.City))
	}

	c.logger.Ctx(ctx).Info("Booking TCS consignment",
		zap.String("reference", req.Reference),
		zap.String("city", req.Consignee.City),
		zap.Int("weight_grams", req.WeightGrams),
	)

	resp, err := withToken(ctx, c, false, func(token string) (*BookingResponse, error) {
		return rejectStaleToken(c.apiClient.CreateBooking(ctx, c.bookingRequest(token, req)))
	})
	if err != nil {
		c.logger.Ctx(ctx).Error("TCS booking failed",
			zap.String("reference", req.Reference), zap.Error(err))
		return nil, err
	}

	raw, _ := json.Marshal(resp)

	if !strings.EqualFold(strings.TrimSpace(resp.Message), "success") {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrBookingFailed, "BOOKING_REJECTED",
			firstNonEmpty(resp.Message, "booking failed"))
	}

	if resp.ConsignmentNo == "" {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "CONSIGNMENT_MISSING",
			"booking response has no consignment number").WithOutcomeUnknown()
	}

	booking = &shipper.Booking{
		Carrier:    carrierName,
		BookingID:  firstNonEmpty(string(resp.TraceID), string(resp.ConsignmentNo)),
		TrackingID: string(resp.ConsignmentNo),
		Reference:  req.Reference,
		Raw:        raw,
	}
	if amount, ok := resp.charge(); ok {
		charges := shipper.PKR(amount)
		booking.Charges = &charges
	}
	return booking, nil
}

// TrackShipment returns the raw TCS tracking document.
func (c *Client) TrackShipment(ctx context.Context, trackingID string) (raw *shipper.RawTracking, err error) {
	ctx, span := c.tracer.Start(ctx, "tcs.TrackShipment",
		trace.WithAttributes(attribute.String("tracking_id", trackingID)))
	defer func() { shipper.EndSpan(span, err) }()

	body, err := shipper.Retry(ctx, c.config.Retry, func() (json.RawMessage, error) {
		return c.apiClient.GetTracking(ctx, trackingID)
	})
	if err != nil {
		if !errors.Is(err, shipper.ErrTrackingNotFound) {
			c.logger.Ctx(ctx).Error("TCS tracking failed",
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

// Normalize maps a TCS tracking document onto the canonical model.
func (c *Client) Normalize(raw *shipper.RawTracking) (*shipper.Tracking, error) {
	var doc TrackingResponse
	if err := json.Unmarshal(raw.Body, &doc); err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "TRACKING_DECODE",
			"unparseable tracking document").WithCause(err)
	}

	if !strings.EqualFold(strings.TrimSpace(doc.Message), "success") {
		if isNotFoundMessage(doc.Message) {
			return shipper.NotFoundTracking(carrierName, raw.TrackingID), nil
		}
		return nil, shipper.NewShipperError(carrierName, shipper.ErrProviderProtocol, "TRACKING_REJECTED",
			firstNonEmpty(doc.Message, "tracking failed"))
	}

	tracking := &shipper.Tracking{
		Carrier:     carrierName,
		TrackingID:  raw.TrackingID,
		Status:      shipper.TrackingBooked,
		Checkpoints: make([]shipper.Checkpoint, 0, len(doc.Checkpoints)+len(doc.DeliveryInfo)),
	}

	for _, ev := range doc.Checkpoints {
		tracking.Checkpoints = append(tracking.Checkpoints, toCheckpoint(ev))
	}
	deliveries := make([]shipper.Checkpoint, 0, len(doc.DeliveryInfo))
	for _, ev := range doc.DeliveryInfo {
		cp := toCheckpoint(ev)
		deliveries = append(deliveries, cp)
		tracking.Checkpoints = append(tracking.Checkpoints, cp)
	}

	tracking.LastCheckpoint = shipper.LatestCheckpoint(tracking.Checkpoints)

	// A delivery attempt outranks plain checkpoints.
	switch {
	case len(deliveries) > 0:
		tracking.Status = shipper.ClassifyScan(shipper.LatestCheckpoint(deliveries).Description)
	case tracking.LastCheckpoint != nil:
		tracking.Status = shipper.ClassifyScan(tracking.LastCheckpoint.Description)
	case strings.TrimSpace(doc.ShipmentSummary) != "":
		tracking.Status = shipper.ClassifyScan(doc.ShipmentSummary)
	}

	if tracking.Status == shipper.TrackingDelivered {
		if last := shipper.LatestCheckpoint(deliveries); last != nil {
			t := last.Time
			tracking.Delivery = &t
			tracking.DeliveryActual = true
		} else if tracking.LastCheckpoint != nil {
			t := tracking.LastCheckpoint.Time
			tracking.Delivery = &t
			tracking.DeliveryActual = true
		}
	} else if len(doc.ShipmentInfo) > 0 {
		if t := parseScanTime(doc.ShipmentInfo[0].ExpectedDelivery); !t.IsZero() {
			tracking.Delivery = &t
		}
	}

	return tracking, nil
}

func (c *Client) fetchToken(ctx context.Context) (*oauth2.Token, error) {
	resp, err := c.apiClient.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{AccessToken: resp.AccessToken}
	if t := parseScanTime(resp.Expiry); !t.IsZero() {
		tok.Expiry = t
	}
	return tok, nil
}

// bookingRequest builds the ecom booking body shared by booking and fee simulation.
func (c *Client) bookingRequest(token string, req *shipper.ShipmentRequest) *BookingRequest {
	sender := c.config.Sender

	bookedAt := req.BookedAt
	if bookedAt.IsZero() {
		bookedAt = time.Now()
	}

	first, last := splitName(req.Consignee.Name)
	weightKG := decimal.NewFromInt(int64(req.WeightGrams)).Div(decimal.NewFromInt(1000)).StringFixed(2)

	declared := req.DeclaredValue
	if !declared.IsPositive() {
		declared = req.CODAmount
	}
	if !declared.IsPositive() {
		declared = decimal.NewFromInt(1000)
	}

	skus := make([]SKU, 0, len(req.Items))
	for _, item := range req.Items {
		skus = append(skus, SKU{
			Description:   item.SKU,
			Quantity:      item.Quantity,
			Weight:        weightKG,
			UOM:           "KG",
			UnitPrice:     decimal.Zero,
			DeclaredValue: declared,
			InsuredValue:  declared,
		})
	}
	if len(skus) == 0 {
		skus = append(skus, SKU{
			Description:   "Parcel",
			Quantity:      1,
			Weight:        weightKG,
			UOM:           "KG",
			DeclaredValue: declared,
			InsuredValue:  declared,
		})
	}

	return &BookingRequest{
		AccessToken: token,
		ShipperInfo: ShipperInfo{
			TCSAccount:  c.config.AccountNo,
			ShipperName: sender.Name,
			Address1:    sender.Address,
			Address2:    sender.Province,
			Zip:         sender.Zip,
			CountryCode: countryCode,
			CountryName: countryName,
			CityName:    sender.City,
			Mobile:      sender.Mobile,
		},
		VendorInfo: VendorInfo{
			Name:     sender.Name,
			Address1: sender.Address,
			CityName: sender.City,
			Mobile:   sender.Mobile,
		},
		ConsigneeInfo: ConsigneeInfo{
			FirstName:   first,
			LastName:    last,
			Address1:    req.Consignee.Address,
			CountryCode: countryCode,
			CountryName: countryName,
			CityName:    strings.ToUpper(strings.TrimSpace(req.Consignee.City)),
			Mobile:      req.Consignee.Phone,
			Email:       req.Consignee.Email,
		},
		ShipmentInfo: ShipmentInfo{
			CostCenterCode: costCenterCode,
			ReferenceNo:    req.Reference,
			ContentDesc:    "Order " + req.Reference,
			ServiceCode:    serviceCode,
			ParameterType:  parameterType,
			ShipmentDate:   bookedAt.In(shipper.PakistanTime).Format(shipmentDateLayout),
			Currency:       shipper.DefaultCurrency,
			CODAmount:      req.CODAmount,
			DeclaredValue:  declared,
			InsuredValue:   declared,
			WeightInKG:     weightKG,
			Pieces:         1,
			SKUs:           skus,
			PieceDetail:    []PieceDetail{{Length: 10, Width: 10, Height: 10}},
		},
	}
}

// withToken runs call with a cached access token. A rejected token is dropped
// from the cache; when retryOnReject is set the call is repeated once with a
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
	c.logger.Ctx(ctx).Warn("TCS rejected access token", zap.Bool("retrying", retryOnReject))
	if !retryOnReject {
		return zero, err
	}

	tok, err = c.tokens.Token(ctx)
	if err != nil {
		return zero, err
	}
	return call(tok.AccessToken)
}

// rejectStaleToken turns a 2xx body that reports an invalid or expired access
// token into an authentication error so withToken can drop the token.
func rejectStaleToken(resp *BookingResponse, err error) (*BookingResponse, error) {
	if err != nil {
		return nil, err
	}
	if isTokenMessage(resp.Message) {
		return nil, shipper.NewShipperError(carrierName, shipper.ErrAuthenticationFailed, "TOKEN_REJECTED", resp.Message)
	}
	return resp, nil
}

// charge returns the first delivery charge, falling back to the shipment total.
func (r *BookingResponse) charge() (decimal.Decimal, bool) {
	if len(r.DeliveryInfo) > 0 && r.DeliveryInfo[0].ChargeAmount.Valid {
		return r.DeliveryInfo[0].ChargeAmount.Decimal, true
	}
	if r.ShipmentInfo != nil && r.ShipmentInfo.TotalCharges.Valid {
		return r.ShipmentInfo.TotalCharges.Decimal, true
	}
	return decimal.Zero, false
}

func toCheckpoint(ev TrackEvent) shipper.Checkpoint {
	desc := strings.TrimSpace(ev.Status)
	if ev.ReceivedBy != "" {
		desc = desc + " - received by " + strings.TrimSpace(ev.ReceivedBy)
	}
	return shipper.Checkpoint{
		Time:        parseScanTime(ev.DateTime),
		Location:    strings.TrimSpace(ev.Location),
		Description: desc,
	}
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func parseScanTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{scanLayout, time.RFC3339, shipmentDateLayout, "2006-01-02T15:04:05", "02/01/2006 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, shipper.PakistanTime); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isTokenMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "token") && (strings.Contains(m, "invalid") || strings.Contains(m, "expired"))
}

// isNotFoundMessage matches replies about an unknown consignment. Generic
// rejections such as "Invalid request" are protocol errors, not misses.
func isNotFoundMessage(msg string) bool {
	m := strings.ToLower(msg)
	for _, phrase := range []string{"not found", "no data", "no record", "invalid consignment", "invalid cn"} {
		if strings.Contains(m, phrase) {
			return true
		}
	}
	return false
}
