package store

import (
	"context"
	"fmt"

	"github.com/tournevent/fulfillment/internal/domain"
	"gorm.io/gorm"
)

// CityRepository reads and bulk-replaces the reference city table.
type CityRepository struct {
	db *gorm.DB
}

// NewCityRepository creates a new CityRepository.
func NewCityRepository(db *gorm.DB) *CityRepository {
	return &CityRepository{db: db}
}

// List returns all cities in insertion order.
func (r *CityRepository) List(ctx context.Context) ([]domain.City, error) {
	return r.list(ctx, "id")
}

// ListByName returns all cities sorted by name.
func (r *CityRepository) ListByName(ctx context.Context) ([]domain.City, error) {
	return r.list(ctx, "name, id")
}

func (r *CityRepository) list(ctx context.Context, order string) ([]domain.City, error) {
	var models []CityModel
	if err := r.db.WithContext(ctx).Order(order).Find(&models).Error; err != nil {
		return nil, translate(err)
	}
	cities := make([]domain.City, len(models))
	for i := range models {
		cities[i] = models[i].ToDomain()
	}
	return cities, nil
}

// ReplaceAll swaps the whole table for cities in one transaction.
func (r *CityRepository) ReplaceAll(ctx context.Context, cities []domain.City) (int, error) {
	models := make([]CityModel, len(cities))
	for i, c := range cities {
		models[i] = CityModel{Name: c.Name, Code: c.Code, Area: c.Area, Region: c.Region}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CityModel{}).Error; err != nil {
			return fmt.Errorf("clearing cities: %w", err)
		}
		if len(models) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(models, 200).Error; err != nil {
			return fmt.Errorf("inserting cities: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, translate(err)
	}
	return len(models), nil
}

// ProductRepository reads catalog entries.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindByIDs returns the products with the given ids keyed by id. Unknown ids
// are absent from the map.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var models []ProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, translate(err)
	}
	for _, m := range models {
		out[m.ID] = domain.Product{ID: m.ID, Name: m.Name, Price: m.Price}
	}
	return out, nil
}

// Save inserts or replaces a catalog entry.
func (r *ProductRepository) Save(ctx context.Context, p domain.Product) error {
	return translate(r.db.WithContext(ctx).Save(&ProductModel{ID: p.ID, Name: p.Name, Price: p.Price}).Error)
}
