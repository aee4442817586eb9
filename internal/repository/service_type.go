package repository

import (
	"context"
	"fmt"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"gorm.io/gorm"
)

// ServiceTypeAttrs seed a catalog entry created on first sight.
type ServiceTypeAttrs struct {
	DefaultPrice *float64
	Category     string
}

type ServiceTypeRepository struct {
	conn *db.Conn
}

func NewServiceTypeRepository(conn *db.Conn) *ServiceTypeRepository {
	return &ServiceTypeRepository{conn: conn}
}

func (r *ServiceTypeRepository) ResolveTx(tx *gorm.DB, name string, attrs ServiceTypeAttrs) (*models.ServiceType, error) {
	return resolveByName(tx, name, func() (*models.ServiceType, error) {
		return &models.ServiceType{Name: name, DefaultPrice: attrs.DefaultPrice, Category: attrs.Category}, nil
	})
}

// Resolve is ResolveTx in its own session. Names are unique, so losing a
// creation race to another writer resolves to the winner's row.
func (r *ServiceTypeRepository) Resolve(ctx context.Context, name string, attrs ServiceTypeAttrs) (*models.ServiceType, error) {
	st, err := commit[models.ServiceType](ctx, r.conn, func(tx *gorm.DB) (uint, error) {
		st, err := r.ResolveTx(tx, name, attrs)
		if err != nil {
			return 0, err
		}
		return st.ID, nil
	})
	if db.IsUniqueViolation(err) {
		st, err = r.FindByName(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve service type %q: %w", name, err)
	}
	return st, nil
}

func (r *ServiceTypeRepository) GetByID(ctx context.Context, id uint) (*models.ServiceType, error) {
	return findByID[models.ServiceType](r.conn.DB(ctx), id)
}

func (r *ServiceTypeRepository) FindByName(ctx context.Context, name string) (*models.ServiceType, error) {
	return findByName[models.ServiceType](r.conn.DB(ctx), name)
}

func (r *ServiceTypeRepository) All(ctx context.Context) ([]models.ServiceType, error) {
	var out []models.ServiceType
	if err := r.conn.DB(ctx).Order("category").Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list service types: %w", err)
	}
	return out, nil
}

func (r *ServiceTypeRepository) ByCategory(ctx context.Context, category string) ([]models.ServiceType, error) {
	var out []models.ServiceType
	if err := r.conn.DB(ctx).Where("category = ?", category).Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list service types in %q: %w", category, err)
	}
	return out, nil
}
