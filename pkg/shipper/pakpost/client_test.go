package pakpost_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/pakpost"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestClient(mockClient *pakpost.MockAPIClient) *pakpost.Client {
	logger := otelzap.New(zap.NewNop())
	return pakpost.NewWithAPIClient(
		pakpost.Config{Retry: shipper.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond}},
		mockClient,
		logger,
		nil,
	)
}

func lahoreShipment() *shipper.ShipmentRequest {
	return &shipper.ShipmentRequest{
		Reference: "482913",
		Consignee: shipper.Consignee{
			Name:    "Ayesha Khan",
			Address: "12 Mall Road",
			City:    "Lahore",
			Phone:   "03001234567",
		},
		WeightGrams: 500,
		CODAmount:   decimal.NewFromInt(2500),
		BookedAt:    time.Date(2025, 3, 10, 22, 30, 0, 0, time.UTC),
	}
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "pakpost", newTestClient(pakpost.NewMockAPIClient()).Name())
}

func TestClient_BookShipment_Success(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	var got *pakpost.TransactionRequest
	var gotToken string
	mockAPI.OnCreateTransaction = func(ctx context.Context, token string, req *pakpost.TransactionRequest) (*pakpost.TransactionResponse, error) {
		got, gotToken = req, token
		return &pakpost.TransactionResponse{Status: 200, OrderID: "77881", ArticleTrackingNo: "VPL26030001"}, nil
	}
	client := newTestClient(mockAPI)

	booking, err := client.BookShipment(context.Background(), lahoreShipment())

	require.NoError(t, err)
	assert.Equal(t, "pakpost", booking.Carrier)
	assert.Equal(t, "77881", booking.BookingID)
	assert.Equal(t, "VPL26030001", booking.TrackingID)
	assert.Equal(t, "482913", booking.Reference)

	require.NotNil(t, got)
	assert.Equal(t, "mock-pakpost-token", gotToken)
	assert.Equal(t, "Ayesha Khan", got.Name)
	assert.Equal(t, "Lahore", got.City)
	assert.Equal(t, "03001234567", got.Contact)
	assert.Equal(t, "482913", got.TransactionID)
	// 22:30 UTC is already the next day in Pakistan.
	assert.Equal(t, "2025-03-11", got.TransactionDate)
	assert.Equal(t, "Pakistan Post", got.CourierService)
	assert.Equal(t, "VPP", got.DeliveryService)
	assert.Equal(t, "2500.00", got.Amount)
}

func TestClient_BookShipment_EmbeddedFailure(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	mockAPI.OnCreateTransaction = func(ctx context.Context, token string, req *pakpost.TransactionRequest) (*pakpost.TransactionResponse, error) {
		return &pakpost.TransactionResponse{Status: 400, Message: "Invalid city"}, nil
	}
	client := newTestClient(mockAPI)

	_, err := client.BookShipment(context.Background(), lahoreShipment())

	require.Error(t, err)
	assert.ErrorIs(t, err, shipper.ErrBookingFailed)
	assert.Contains(t, err.Error(), "Invalid city")
	assert.False(t, shipper.IsOutcomeUnknown(err))
}

func TestClient_BookShipment_MissingTrackingNumber(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	mockAPI.OnCreateTransaction = func(ctx context.Context, token string, req *pakpost.TransactionRequest) (*pakpost.TransactionResponse, error) {
		return &pakpost.TransactionResponse{Status: 200, OrderID: "1"}, nil
	}
	client := newTestClient(mockAPI)

	_, err := client.BookShipment(context.Background(), lahoreShipment())

	assert.ErrorIs(t, err, shipper.ErrProviderProtocol)
	assert.True(t, shipper.IsOutcomeUnknown(err))
}

func TestClient_BookShipment_NeverRetried(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	var calls atomic.Int32
	mockAPI.OnCreateTransaction = func(ctx context.Context, token string, req *pakpost.TransactionRequest) (*pakpost.TransactionResponse, error) {
		calls.Add(1)
		return nil, shipper.NewShipperError("pakpost", shipper.ErrServiceUnavailable, "HTTP_503", "down").WithRetryable(true)
	}
	client := newTestClient(mockAPI)

	_, err := client.BookShipment(context.Background(), lahoreShipment())

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BookShipment_RejectedTokenIsInvalidatedNotRetried(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	var tokenFetches, calls atomic.Int32
	mockAPI.OnGetToken = func(ctx context.Context) (*pakpost.TokenResponse, error) {
		tokenFetches.Add(1)
		return &pakpost.TokenResponse{Content: pakpost.TokenContent{Token: pakpost.TokenDetails{AccessToken: "tok"}}}, nil
	}
	mockAPI.OnCreateTransaction = func(ctx context.Context, token string, req *pakpost.TransactionRequest) (*pakpost.TransactionResponse, error) {
		if calls.Add(1) == 1 {
			return nil, shipper.HTTPStatusError("pakpost", 401, shipper.ErrBookingFailed, "token expired")
		}
		return &pakpost.TransactionResponse{Status: 200, OrderID: "1", ArticleTrackingNo: "VPL1"}, nil
	}
	client := newTestClient(mockAPI)
	ctx := context.Background()

	_, err := client.BookShipment(ctx, lahoreShipment())
	assert.ErrorIs(t, err, shipper.ErrAuthenticationFailed)
	assert.Equal(t, int32(1), calls.Load())

	// The next booking fetches a fresh token.
	_, err = client.BookShipment(ctx, lahoreShipment())
	require.NoError(t, err)
	assert.Equal(t, int32(2), tokenFetches.Load())
}

func TestClient_BookShipment_TokenFailure(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	mockAPI.OnGetToken = func(ctx context.Context) (*pakpost.TokenResponse, error) {
		return nil, shipper.HTTPStatusError("pakpost", 401, shipper.ErrAuthenticationFailed, "bad secret")
	}
	var calls atomic.Int32
	mockAPI.OnCreateTransaction = func(ctx context.Context, token string, req *pakpost.TransactionRequest) (*pakpost.TransactionResponse, error) {
		calls.Add(1)
		return nil, nil
	}
	client := newTestClient(mockAPI)

	_, err := client.BookShipment(context.Background(), lahoreShipment())

	assert.ErrorIs(t, err, shipper.ErrAuthenticationFailed)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_TokenIsReused(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	var tokenFetches atomic.Int32
	mockAPI.OnGetToken = func(ctx context.Context) (*pakpost.TokenResponse, error) {
		tokenFetches.Add(1)
		return &pakpost.TokenResponse{Content: pakpost.TokenContent{Token: pakpost.TokenDetails{AccessToken: "tok", ExpiresIn: 3600}}}, nil
	}
	client := newTestClient(mockAPI)
	ctx := context.Background()

	for range 3 {
		_, err := client.QuoteFee(ctx, &shipper.FeeRequest{City: "Lahore", WeightGrams: 500})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), tokenFetches.Load())
}

func TestClient_QuoteFee_Success(t *testing.T) {
	client := newTestClient(pakpost.NewMockAPIClient())

	fee, err := client.QuoteFee(context.Background(), &shipper.FeeRequest{City: "Quetta", WeightGrams: 1200})

	require.NoError(t, err)
	assert.Equal(t, "pakpost", fee.Carrier)
	assert.Equal(t, "PKR", fee.Total.Currency)
	assert.True(t, decimal.NewFromInt(450).Equal(fee.Total.Amount), fee.Total.Amount.String())
}

func TestClient_QuoteFee_Rejected(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	mockAPI.OnGetTariff = func(ctx context.Context, token string, req *pakpost.TariffRequest) (*pakpost.TariffResponse, error) {
		return &pakpost.TariffResponse{Status: 500, Message: "weight out of range"}, nil
	}
	client := newTestClient(mockAPI)

	_, err := client.QuoteFee(context.Background(), &shipper.FeeRequest{City: "Lahore", WeightGrams: 999999})
	assert.ErrorIs(t, err, shipper.ErrProviderProtocol)
	assert.Contains(t, err.Error(), "weight out of range")
}

func TestClient_QuoteFee_InvalidWeight(t *testing.T) {
	client := newTestClient(pakpost.NewMockAPIClient())

	_, err := client.QuoteFee(context.Background(), &shipper.FeeRequest{City: "Lahore", WeightGrams: 0})
	assert.ErrorIs(t, err, shipper.ErrInvalidPackage)
}

func TestClient_QuoteFee_RetriesTransientFailure(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	var calls atomic.Int32
	mockAPI.OnGetTariff = func(ctx context.Context, token string, req *pakpost.TariffRequest) (*pakpost.TariffResponse, error) {
		if calls.Add(1) == 1 {
			return nil, shipper.HTTPStatusError("pakpost", 503, shipper.ErrProviderProtocol, "busy")
		}
		return &pakpost.TariffResponse{Status: 200, TotalCharges: decimal.NewFromInt(150)}, nil
	}
	client := newTestClient(mockAPI)

	fee, err := client.QuoteFee(context.Background(), &shipper.FeeRequest{City: "Lahore", WeightGrams: 500})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150).Equal(fee.Total.Amount))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_APIError(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI)

	_, err := client.QuoteFee(context.Background(), &shipper.FeeRequest{City: "Lahore", WeightGrams: 500})
	assert.Error(t, err)
}

func trackingDoc(t *testing.T, doc pakpost.TrackingResponse) *shipper.RawTracking {
	t.Helper()
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	return &shipper.RawTracking{Carrier: "pakpost", TrackingID: "VPL1", StatusCode: 200, Body: body}
}

func TestClient_Normalize(t *testing.T) {
	client := newTestClient(pakpost.NewMockAPIClient())

	t.Run("delivered", func(t *testing.T) {
		tracking, err := client.Normalize(trackingDoc(t, pakpost.TrackingResponse{
			Status: 200,
			TrackingDetails: []pakpost.TrackingEvent{
				{Date: "2025-03-11 09:00", Location: "Nowshera GPO", Status: "Booked"},
				{Date: "2025-03-13 15:20", Location: "Lahore DMO", Status: "Delivered", Remarks: "Received by self"},
				{Date: "2025-03-12 08:00", Location: "Lahore DMO", Status: "Out for delivery"},
			},
		}))
		require.NoError(t, err)
		assert.Equal(t, shipper.TrackingDelivered, tracking.Status)
		require.NotNil(t, tracking.LastCheckpoint)
		assert.Equal(t, "Delivered - Received by self", tracking.LastCheckpoint.Description)
		require.NotNil(t, tracking.Delivery)
		assert.True(t, tracking.DeliveryActual)
		assert.Len(t, tracking.Checkpoints, 3)
	})

	t.Run("booked without scans", func(t *testing.T) {
		tracking, err := client.Normalize(trackingDoc(t, pakpost.TrackingResponse{Status: 200}))
		require.NoError(t, err)
		assert.Equal(t, shipper.TrackingBooked, tracking.Status)
		assert.Nil(t, tracking.LastCheckpoint)
		assert.Empty(t, tracking.Checkpoints)
	})

	t.Run("provider not found", func(t *testing.T) {
		tracking, err := client.Normalize(trackingDoc(t, pakpost.TrackingResponse{Status: 400, Message: "No record found"}))
		require.NoError(t, err)
		assert.Equal(t, shipper.TrackingNotFound, tracking.Status)
	})

	t.Run("provider failure", func(t *testing.T) {
		_, err := client.Normalize(trackingDoc(t, pakpost.TrackingResponse{Status: 500, Message: "Internal error"}))
		assert.ErrorIs(t, err, shipper.ErrProviderProtocol)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := client.Normalize(&shipper.RawTracking{TrackingID: "VPL1", Body: json.RawMessage(`"oops"`)})
		assert.ErrorIs(t, err, shipper.ErrProviderProtocol)
	})
}

func TestClient_TrackShipment_NotFound(t *testing.T) {
	mockAPI := pakpost.NewMockAPIClient()
	mockAPI.OnGetTracking = func(ctx context.Context, token string, articleNo string) (json.RawMessage, error) {
		return nil, shipper.HTTPStatusError("pakpost", 404, shipper.ErrTrackingNotFound, "unknown article")
	}
	client := newTestClient(mockAPI)

	tracking, err := shipper.Track(context.Background(), client, "VPL404")
	require.NoError(t, err)
	assert.Equal(t, shipper.TrackingNotFound, tracking.Status)
}

func TestClient_TrackShipment_Default(t *testing.T) {
	client := newTestClient(pakpost.NewMockAPIClient())

	tracking, err := shipper.Track(context.Background(), client, "VPL1")
	require.NoError(t, err)
	assert.Equal(t, shipper.TrackingInTransit, tracking.Status)
	assert.Len(t, tracking.Checkpoints, 2)
}
