package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/internal/domain"
)

// AccountModel is the persistence model for domain.Account.
type AccountModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	FirstName    string    `gorm:"type:varchar(100)"`
	LastName     string    `gorm:"type:varchar(100)"`
	Email        string    `gorm:"type:varchar(200);not null;uniqueIndex"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	Roles        []string  `gorm:"serializer:json"`
	Verified     bool      `gorm:"not null;default:false"`
	Blocked      bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account.
func (m *AccountModel) ToDomain() *domain.Account {
	return &domain.Account{
		ID:           m.ID,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Roles:        append([]string(nil), m.Roles...),
		Verified:     m.Verified,
		Blocked:      m.Blocked,
		CreatedAt:    m.CreatedAt,
	}
}

func accountFromDomain(a *domain.Account) *AccountModel {
	return &AccountModel{
		ID:           a.ID,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Roles:        a.Roles,
		Verified:     a.Verified,
		Blocked:      a.Blocked,
		CreatedAt:    a.CreatedAt,
	}
}

// OrderModel is the persistence model for domain.Order.
type OrderModel struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	AccountID      *uuid.UUID        `gorm:"type:uuid;index"`
	Email          string            `gorm:"type:varchar(200);not null;index"`
	FullName       string            `gorm:"type:varchar(200);not null"`
	Address        string            `gorm:"type:text;not null"`
	City           string            `gorm:"type:varchar(100);not null"`
	Phone          string            `gorm:"type:varchar(50);not null"`
	Items          []domain.LineItem `gorm:"serializer:json"`
	TotalAmount    decimal.Decimal   `gorm:"type:decimal(12,2);not null"`
	WeightGrams    int               `gorm:"not null"`
	ShippingFee    decimal.Decimal   `gorm:"type:decimal(12,2);not null"`
	ShippingMethod string            `gorm:"type:varchar(30);not null"`
	PaymentMethod  string            `gorm:"type:varchar(10);not null"`
	Status         string            `gorm:"type:varchar(20);not null;index"`
	TransactionRef string            `gorm:"type:varchar(64);not null;uniqueIndex"`
	CreatedAt      time.Time         `gorm:"not null"`
	UpdatedAt      time.Time         `gorm:"not null"`

	Shipment *ShipmentModel `gorm:"foreignKey:OrderID;constraint:OnDelete:RESTRICT"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order.
func (m *OrderModel) ToDomain() *domain.Order {
	return &domain.Order{
		ID:             m.ID,
		AccountID:      m.AccountID,
		Email:          m.Email,
		FullName:       m.FullName,
		Address:        m.Address,
		City:           m.City,
		Phone:          m.Phone,
		Items:          append([]domain.LineItem(nil), m.Items...),
		TotalAmount:    m.TotalAmount,
		WeightGrams:    m.WeightGrams,
		ShippingFee:    m.ShippingFee,
		ShippingMethod: m.ShippingMethod,
		PaymentMethod:  domain.PaymentMethod(m.PaymentMethod),
		Status:         domain.OrderStatus(m.Status),
		TransactionRef: m.TransactionRef,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func orderFromDomain(o *domain.Order) *OrderModel {
	return &OrderModel{
		ID:             o.ID,
		AccountID:      o.AccountID,
		Email:          o.Email,
		FullName:       o.FullName,
		Address:        o.Address,
		City:           o.City,
		Phone:          o.Phone,
		Items:          o.Items,
		TotalAmount:    o.TotalAmount,
		WeightGrams:    o.WeightGrams,
		ShippingFee:    o.ShippingFee,
		ShippingMethod: o.ShippingMethod,
		PaymentMethod:  string(o.PaymentMethod),
		Status:         string(o.Status),
		TransactionRef: o.TransactionRef,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// ShipmentModel is the persistence model for domain.Shipment.
type ShipmentModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Carrier     string          `gorm:"type:varchar(30);not null"`
	WeightGrams int             `gorm:"not null"`
	Charges     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	BookingID   string          `gorm:"type:varchar(64)"`
	TrackingID  string          `gorm:"type:varchar(64);not null;index"`
	CreatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ShipmentModel) TableName() string {
	return "shipments"
}

// ToDomain converts the persistence model to a domain Shipment.
func (m *ShipmentModel) ToDomain() *domain.Shipment {
	return &domain.Shipment{
		ID:          m.ID,
		OrderID:     m.OrderID,
		Carrier:     m.Carrier,
		WeightGrams: m.WeightGrams,
		Charges:     m.Charges,
		BookingID:   m.BookingID,
		TrackingID:  m.TrackingID,
		CreatedAt:   m.CreatedAt,
	}
}

func shipmentFromDomain(s *domain.Shipment) *ShipmentModel {
	return &ShipmentModel{
		ID:          s.ID,
		OrderID:     s.OrderID,
		Carrier:     s.Carrier,
		WeightGrams: s.WeightGrams,
		Charges:     s.Charges,
		BookingID:   s.BookingID,
		TrackingID:  s.TrackingID,
		CreatedAt:   s.CreatedAt,
	}
}

// CityModel is one row of the reference city table.
type CityModel struct {
	ID     uint   `gorm:"primaryKey;autoIncrement"`
	Name   string `gorm:"type:varchar(100);not null"`
	Code   string `gorm:"type:varchar(20)"`
	Area   string `gorm:"type:varchar(100)"`
	Region string `gorm:"type:varchar(100);index"`
}

// TableName returns the table name for GORM
func (CityModel) TableName() string {
	return "cities"
}

// ToDomain converts the persistence model to a domain City.
func (m *CityModel) ToDomain() domain.City {
	return domain.City{ID: m.ID, Name: m.Name, Code: m.Code, Area: m.Area, Region: m.Region}
}

// ProductModel is the read side of the external catalog.
type ProductModel struct {
	ID    string          `gorm:"type:varchar(64);primaryKey"`
	Name  string          `gorm:"type:varchar(200);not null"`
	Price decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}
