package repository

import (
	"context"
	"fmt"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"gorm.io/gorm"
)

// CustomerAttrs seed a customer created on first sight.
type CustomerAttrs struct {
	Phone string
	Notes string
}

// CustomerUpdate changes the given fields of an existing customer.
type CustomerUpdate struct {
	Phone *string
	Notes *string
}

type CustomerRepository struct {
	conn *db.Conn
}

func NewCustomerRepository(conn *db.Conn) *CustomerRepository {
	return &CustomerRepository{conn: conn}
}

func (r *CustomerRepository) ResolveTx(tx *gorm.DB, name string, attrs CustomerAttrs) (*models.Customer, error) {
	return resolveByName(tx, name, func() (*models.Customer, error) {
		return &models.Customer{Name: name, Phone: attrs.Phone, Notes: attrs.Notes}, nil
	})
}

func (r *CustomerRepository) Resolve(ctx context.Context, name string, attrs CustomerAttrs) (*models.Customer, error) {
	c, err := commit[models.Customer](ctx, r.conn, func(tx *gorm.DB) (uint, error) {
		c, err := r.ResolveTx(tx, name, attrs)
		if err != nil {
			return 0, err
		}
		return c.ID, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve customer %q: %w", name, err)
	}
	return c, nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id uint) (*models.Customer, error) {
	return findByID[models.Customer](r.conn.DB(ctx), id)
}

// FindByName returns the oldest customer with exactly this name, or nil.
func (r *CustomerRepository) FindByName(ctx context.Context, name string) (*models.Customer, error) {
	c, err := findByName[models.Customer](r.conn.DB(ctx), name)
	if err != nil {
		return nil, fmt.Errorf("find customer %q: %w", name, err)
	}
	return c, nil
}

// Search matches keyword against name or phone.
func (r *CustomerRepository) Search(ctx context.Context, keyword string) ([]models.Customer, error) {
	var out []models.Customer
	p := likePattern(keyword)
	err := r.conn.DB(ctx).
		Where("name LIKE ? ESCAPE '\\' OR phone LIKE ? ESCAPE '\\'", p, p).
		Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	return out, nil
}

func (r *CustomerRepository) Update(ctx context.Context, id uint, u CustomerUpdate) (*models.Customer, error) {
	cols := map[string]any{}
	if u.Phone != nil {
		cols["phone"] = *u.Phone
	}
	if u.Notes != nil {
		cols["notes"] = *u.Notes
	}
	ok, err := updateByID(r.conn.DB(ctx), &models.Customer{}, id, cols)
	if err != nil {
		return nil, fmt.Errorf("update customer %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}
