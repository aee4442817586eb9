package repository

import (
	"context"
	"fmt"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
	"gorm.io/gorm"
)

// ProductAttrs seed a product created on first sight.
type ProductAttrs struct {
	Category  string
	UnitPrice *float64
}

// StockChange describes why a product's stock moved.
type StockChange struct {
	Type        models.InventoryChange
	ReferenceID *uint
	Notes       string
}

type ProductRepository struct {
	conn *db.Conn
}

func NewProductRepository(conn *db.Conn) *ProductRepository { return &ProductRepository{conn: conn} }

func (r *ProductRepository) ResolveTx(tx *gorm.DB, name string, attrs ProductAttrs) (*models.Product, error) {
	return resolveByName(tx, name, func() (*models.Product, error) {
		return &models.Product{Name: name, Category: attrs.Category, UnitPrice: attrs.UnitPrice, LowStockThreshold: 10}, nil
	})
}

func (r *ProductRepository) Resolve(ctx context.Context, name string, attrs ProductAttrs) (*models.Product, error) {
	p, err := commit[models.Product](ctx, r.conn, func(tx *gorm.DB) (uint, error) {
		p, err := r.ResolveTx(tx, name, attrs)
		if err != nil {
			return 0, err
		}
		return p.ID, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve product %q: %w", name, err)
	}
	return p, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	return findByID[models.Product](r.conn.DB(ctx), id)
}

// LowStock lists products at or below their reorder threshold.
func (r *ProductRepository) LowStock(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	if err := r.conn.DB(ctx).Where("stock_quantity <= low_stock_threshold").Order("stock_quantity").Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return out, nil
}

// AdjustStockTx moves stock by delta and appends the matching inventory log.
// It returns nil when the product does not exist.
func (r *ProductRepository) AdjustStockTx(tx *gorm.DB, id uint, delta int, change StockChange) (*models.Product, error) {
	v := validation.Violations{}
	validation.OneOf("change_type", string(change.Type), []string{string(models.InventorySale), string(models.InventoryRestock), string(models.InventoryAdjustment)}, v)
	validation.Required("change_type", string(change.Type), v)
	if err := v.Err(); err != nil {
		return nil, err
	}

	p, err := findByID[models.Product](forUpdate(tx), id)
	if err != nil || p == nil {
		return nil, err
	}
	p.StockQuantity += delta
	if err := tx.Model(p).Update("stock_quantity", p.StockQuantity).Error; err != nil {
		return nil, err
	}
	log := models.InventoryLog{
		ProductID:      p.ID,
		ChangeType:     change.Type,
		QuantityChange: delta,
		QuantityAfter:  p.StockQuantity,
		ReferenceID:    change.ReferenceID,
		Notes:          change.Notes,
	}
	if err := tx.Create(&log).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProductRepository) AdjustStock(ctx context.Context, id uint, delta int, change StockChange) (*models.Product, error) {
	p, err := commit[models.Product](ctx, r.conn, func(tx *gorm.DB) (uint, error) {
		p, err := r.AdjustStockTx(tx, id, delta, change)
		if err != nil || p == nil {
			return 0, err
		}
		return p.ID, nil
	})
	if err != nil {
		return nil, fmt.Errorf("adjust stock of product %d: %w", id, err)
	}
	return p, nil
}

// InventoryHistory returns a product's stock movements, oldest first.
func (r *ProductRepository) InventoryHistory(ctx context.Context, productID uint) ([]models.InventoryLog, error) {
	var out []models.InventoryLog
	if err := r.conn.DB(ctx).Where("product_id = ?", productID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("inventory history of product %d: %w", productID, err)
	}
	return out, nil
}
