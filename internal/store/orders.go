package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tournevent/fulfillment/internal/domain"
	"gorm.io/gorm"
)

// OrderRepository stores orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts an order. TransactionRef must be unique.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	model := orderFromDomain(order)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err)
	}
	order.CreatedAt, order.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return nil
}

// Delete removes an order. Deleting a missing order is not an error.
func (r *OrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Delete(&OrderModel{}, "id = ?", id).Error)
}

// FindByID looks an order up by id.
func (r *OrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindByTransactionRef looks an order up by its carrier transaction reference.
func (r *OrderRepository) FindByTransactionRef(ctx context.Context, ref string) (*domain.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).Where("transaction_ref = ?", ref).First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// UpdateStatus moves an order from one status to another. The write only
// applies while the stored status still equals from; otherwise ErrConflict.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s is no longer %s", ErrConflict, id, from)
	}
	return nil
}

// ShipmentRepository stores shipments.
type ShipmentRepository struct {
	db *gorm.DB
}

// NewShipmentRepository creates a new ShipmentRepository.
func NewShipmentRepository(db *gorm.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

// Create inserts a shipment. An order holds at most one shipment.
func (r *ShipmentRepository) Create(ctx context.Context, shipment *domain.Shipment) error {
	if shipment.ID == uuid.Nil {
		shipment.ID = uuid.New()
	}
	model := shipmentFromDomain(shipment)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err)
	}
	shipment.CreatedAt = model.CreatedAt
	return nil
}

// Delete removes a shipment. Deleting a missing shipment is not an error.
func (r *ShipmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Delete(&ShipmentModel{}, "id = ?", id).Error)
}

// FindByOrderID returns the shipment linked to an order.
func (r *ShipmentRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Shipment, error) {
	var model ShipmentModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindByTrackingID returns the shipment holding a carrier tracking id.
func (r *ShipmentRepository) FindByTrackingID(ctx context.Context, trackingID string) (*domain.Shipment, error) {
	var model ShipmentModel
	if err := r.db.WithContext(ctx).Where("tracking_id = ?", trackingID).First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}
