package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
	"gorm.io/gorm"
)

// ProductSaleInput is a parsed "product sold" fact.
type ProductSaleInput struct {
	ProductName string
	// Category and UnitPrice seed the product if it is new.
	Category  string
	UnitPrice *float64

	Date     Day
	Quantity int
	// Amount is the sale total. Without it the total is Quantity times the
	// unit price given here or stored on the product.
	Amount *float64

	CustomerName     string
	RecorderNickname string
	Notes            string
	Confidence       *float64
	Confirmed        bool
	// DeductStock takes the sold quantity out of the product's stock.
	DeductStock bool
}

func (in ProductSaleInput) validate() (time.Time, error) {
	v := validation.Violations{}
	day, _ := in.Date.resolve("date", v)
	if in.Quantity < 0 {
		v["quantity"] = "must_not_be_negative"
	}
	if in.Amount != nil {
		validation.NonNegativeFloat("amount", *in.Amount, v)
	}
	if in.UnitPrice != nil {
		validation.NonNegativeFloat("unit_price", *in.UnitPrice, v)
	}
	if in.Confidence != nil {
		validation.RangeFloat("confidence", *in.Confidence, 0, 1, v)
	}
	return day, v.Err()
}

type ProductSaleRepository struct {
	conn      *db.Conn
	products  *ProductRepository
	customers *CustomerRepository
	staff     *StaffRepository
}

func NewProductSaleRepository(conn *db.Conn, products *ProductRepository, customers *CustomerRepository, staff *StaffRepository) *ProductSaleRepository {
	return &ProductSaleRepository{conn: conn, products: products, customers: customers, staff: staff}
}

func (r *ProductSaleRepository) SaveTx(tx *gorm.DB, in ProductSaleInput, rawMessageID uint) (*models.ProductSale, error) {
	day, err := in.validate()
	if err != nil {
		return nil, err
	}
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}

	product, err := r.products.ResolveTx(tx, in.ProductName, ProductAttrs{Category: in.Category, UnitPrice: in.UnitPrice})
	if err != nil {
		return nil, err
	}
	unitPrice := in.UnitPrice
	if unitPrice == nil {
		unitPrice = product.UnitPrice
	}
	var total float64
	switch {
	case in.Amount != nil:
		total = *in.Amount
	case unitPrice != nil:
		total = float64(qty) * *unitPrice
	default:
		return nil, validation.Single("amount", "required")
	}

	sale := &models.ProductSale{
		ProductID:       product.ID,
		Quantity:        qty,
		UnitPrice:       unitPrice,
		TotalAmount:     total,
		SaleDate:        day,
		Notes:           in.Notes,
		Confirmed:       in.Confirmed,
		RawMessageID:    optionalID(rawMessageID),
		ParseConfidence: 0.5,
	}
	if in.Confidence != nil {
		sale.ParseConfidence = *in.Confidence
	}
	if in.Confirmed {
		now := time.Now().UTC()
		sale.ConfirmedAt = &now
	}
	if in.CustomerName != "" {
		c, err := r.customers.ResolveTx(tx, in.CustomerName, CustomerAttrs{})
		if err != nil {
			return nil, err
		}
		sale.CustomerID = &c.ID
	}
	if in.RecorderNickname != "" {
		s, err := r.staff.ResolveTx(tx, in.RecorderNickname, StaffAttrs{Nickname: in.RecorderNickname})
		if err != nil {
			return nil, err
		}
		sale.RecorderID = &s.ID
	}

	if err := tx.Create(sale).Error; err != nil {
		return nil, err
	}
	if in.DeductStock {
		if _, err := r.products.AdjustStockTx(tx, product.ID, -qty, StockChange{Type: models.InventorySale, ReferenceID: &sale.ID}); err != nil {
			return nil, err
		}
	}
	return sale, nil
}

func (r *ProductSaleRepository) Save(ctx context.Context, in ProductSaleInput, rawMessageID uint) (uint, error) {
	var id uint
	err := r.conn.WithSession(ctx, func(tx *gorm.DB) error {
		sale, err := r.SaveTx(tx, in, rawMessageID)
		if err != nil {
			return err
		}
		id = sale.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save product sale: %w", err)
	}
	return id, nil
}

func (r *ProductSaleRepository) GetByID(ctx context.Context, id uint) (*models.ProductSale, error) {
	return findByID[models.ProductSale](r.conn.DB(ctx), id)
}

// ByDate lists the products sold on day, in insertion order.
func (r *ProductSaleRepository) ByDate(ctx context.Context, day time.Time) ([]DailyEntry, error) {
	type row struct {
		ID           uint
		ProductName  string
		CustomerName *string
		Quantity     int
		TotalAmount  float64
		Confirmed    bool
	}
	from, to := dayRange(day)
	var rows []row
	err := r.conn.DB(ctx).Table("product_sales AS ps").
		Select("ps.id, p.name AS product_name, c.name AS customer_name, ps.quantity, ps.total_amount, ps.confirmed").
		Joins("JOIN products p ON p.id = ps.product_id").
		Joins("LEFT JOIN customers c ON c.id = ps.customer_id").
		Where("ps.sale_date >= ? AND ps.sale_date < ?", from, to).
		Order("ps.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("product sales on %s: %w", from.Format(validation.DateLayout), err)
	}

	out := make([]DailyEntry, 0, len(rows))
	for _, rw := range rows {
		e := DailyEntry{
			Type:        EntryProductSale,
			ID:          rw.ID,
			ProductName: rw.ProductName,
			Quantity:    rw.Quantity,
			Amount:      rw.TotalAmount,
			NetAmount:   rw.TotalAmount,
			Confirmed:   rw.Confirmed,
		}
		if rw.CustomerName != nil {
			e.CustomerName = *rw.CustomerName
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *ProductSaleRepository) Confirm(ctx context.Context, id uint) (bool, error) {
	ok, err := updateByID(r.conn.DB(ctx), &models.ProductSale{}, id, map[string]any{
		"confirmed":    true,
		"confirmed_at": time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("confirm product sale %d: %w", id, err)
	}
	return ok, nil
}
