package tcs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetAccessToken func(ctx context.Context) (*TokenResponse, error)
	OnCreateBooking  func(ctx context.Context, req *BookingRequest) (*BookingResponse, error)
	OnSimulateFee    func(ctx context.Context, req *BookingRequest) (*BookingResponse, error)
	OnGetTracking    func(ctx context.Context, consignmentNo string) (json.RawMessage, error)
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

// GetAccessToken returns a mock access token.
func (m *MockAPIClient) GetAccessToken(ctx context.Context) (*TokenResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnGetAccessToken != nil {
		return m.OnGetAccessToken(ctx)
	}
	return &TokenResponse{AccessToken: "mock-tcs-token"}, nil
}

// CreateBooking books a mock consignment.
func (m *MockAPIClient) CreateBooking(ctx context.Context, req *BookingRequest) (*BookingResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnCreateBooking != nil {
		return m.OnCreateBooking(ctx, req)
	}
	return &BookingResponse{
		Message:       "success",
		ConsignmentNo: shipper.FlexString(fmt.Sprintf("77%d", time.Now().UnixNano()%10000000000)),
		TraceID:       shipper.FlexString(strconv.FormatInt(time.Now().UnixNano()%1000000, 10)),
	}, nil
}

// SimulateFee returns a mock fee of 220 PKR per started kilogram.
func (m *MockAPIClient) SimulateFee(ctx context.Context, req *BookingRequest) (*BookingResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnSimulateFee != nil {
		return m.OnSimulateFee(ctx, req)
	}
	kg, err := decimal.NewFromString(req.ShipmentInfo.WeightInKG)
	if err != nil {
		kg = decimal.NewFromInt(1)
	}
	slabs := kg.Ceil()
	if slabs.LessThan(decimal.NewFromInt(1)) {
		slabs = decimal.NewFromInt(1)
	}
	return &BookingResponse{
		Message: "success",
		DeliveryInfo: []ChargeInfo{
			{ChargeAmount: decimal.NewNullDecimal(slabs.Mul(decimal.NewFromInt(220)))},
		},
	}, nil
}

// GetTracking returns a mock in-transit document.
func (m *MockAPIClient) GetTracking(ctx context.Context, consignmentNo string) (json.RawMessage, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnGetTracking != nil {
		return m.OnGetTracking(ctx, consignmentNo)
	}
	now := time.Now().In(shipper.PakistanTime)
	return json.Marshal(TrackingResponse{
		Message: "SUCCESS",
		ShipmentInfo: []TrackShipmentInfo{{
			ConsignmentNo: shipper.FlexString(consignmentNo),
			Origin:        "NOWSHERA",
			Destination:   "LAHORE",
			BookingDate:   now.Add(-48 * time.Hour).Format(scanLayout),
		}},
		Checkpoints: []TrackEvent{
			{DateTime: now.Add(-24 * time.Hour).Format(scanLayout), Status: "Arrived at TCS Facility", Location: "LAHORE"},
			{DateTime: now.Add(-48 * time.Hour).Format(scanLayout), Status: "Shipment Booked", Location: "NOWSHERA"},
		},
	})
}

var _ APIClient = (*MockAPIClient)(nil)
