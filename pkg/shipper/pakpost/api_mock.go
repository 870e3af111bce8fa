package pakpost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetToken          func(ctx context.Context) (*TokenResponse, error)
	OnCreateTransaction func(ctx context.Context, token string, req *TransactionRequest) (*TransactionResponse, error)
	OnGetTariff         func(ctx context.Context, token string, req *TariffRequest) (*TariffResponse, error)
	OnGetTracking       func(ctx context.Context, token string, articleNo string) (json.RawMessage, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) simulate(ctx context.Context) error {
	if m.SimulateLatency > 0 {
		select {
		case <-time.After(m.SimulateLatency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.SimulateErrors {
		return shipper.NewShipperError(carrierName, shipper.ErrServiceUnavailable, "MOCK_ERROR", "Simulated API error")
	}
	return nil
}

// GetToken returns a mock token.
func (m *MockAPIClient) GetToken(ctx context.Context) (*TokenResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnGetToken != nil {
		return m.OnGetToken(ctx)
	}
	return &TokenResponse{
		Content: TokenContent{Token: TokenDetails{AccessToken: "mock-pakpost-token", ExpiresIn: 3600}},
	}, nil
}

// CreateTransaction books a mock article.
func (m *MockAPIClient) CreateTransaction(ctx context.Context, token string, req *TransactionRequest) (*TransactionResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnCreateTransaction != nil {
		return m.OnCreateTransaction(ctx, token, req)
	}
	return &TransactionResponse{
		Status:            200,
		Message:           "Transaction created",
		OrderID:           shipper.FlexString(fmt.Sprintf("PP%d", time.Now().UnixNano()%100000000)),
		ArticleTrackingNo: fmt.Sprintf("VPL%d", time.Now().UnixNano()%10000000000),
	}, nil
}

// GetTariff returns a mock tariff of 150 PKR per started 500 g.
func (m *MockAPIClient) GetTariff(ctx context.Context, token string, req *TariffRequest) (*TariffResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnGetTariff != nil {
		return m.OnGetTariff(ctx, token, req)
	}
	slabs := int64((req.WeightInGrams + 499) / 500)
	return &TariffResponse{
		Status:       200,
		TotalCharges: decimal.NewFromInt(150 * slabs),
	}, nil
}

// GetTracking returns a mock in-transit document.
func (m *MockAPIClient) GetTracking(ctx context.Context, token string, articleNo string) (json.RawMessage, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnGetTracking != nil {
		return m.OnGetTracking(ctx, token, articleNo)
	}
	now := time.Now().In(shipper.PakistanTime)
	return json.Marshal(TrackingResponse{
		Status:            200,
		ArticleTrackingNo: articleNo,
		BookingDate:       now.Add(-48 * time.Hour).Format(dateLayout),
		TrackingDetails: []TrackingEvent{
			{Date: now.Add(-48 * time.Hour).Format(scanLayout), Location: "Nowshera GPO", Status: "Booked"},
			{Date: now.Add(-24 * time.Hour).Format(scanLayout), Location: "Lahore DMO", Status: "Dispatched to delivery office"},
		},
	})
}

var _ APIClient = (*MockAPIClient)(nil)
