package repository

import (
	"context"
	"fmt"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
	"gorm.io/gorm"
)

// StaffAttrs seed a staff member created on first sight.
type StaffAttrs struct {
	Nickname       string
	Alias          string
	Role           models.StaffRole
	CommissionRate float64
}

func (a StaffAttrs) validate() error {
	v := validation.Violations{}
	validation.OneOf("role", string(a.Role), []string{string(models.StaffRoleStaff), string(models.StaffRoleManager), string(models.StaffRoleBot)}, v)
	validation.NonNegativeFloat("commission_rate", a.CommissionRate, v)
	return v.Err()
}

// StaffUpdate changes the given fields of an existing staff member.
type StaffUpdate struct {
	Nickname       *string
	Alias          *string
	Role           *models.StaffRole
	CommissionRate *float64
	IsActive       *bool
}

type StaffRepository struct {
	conn *db.Conn
}

func NewStaffRepository(conn *db.Conn) *StaffRepository { return &StaffRepository{conn: conn} }

// ResolveTx returns the staff member named name, creating it with attrs if needed.
func (r *StaffRepository) ResolveTx(tx *gorm.DB, name string, attrs StaffAttrs) (*models.Staff, error) {
	return resolveByName(tx, name, func() (*models.Staff, error) {
		if err := attrs.validate(); err != nil {
			return nil, err
		}
		role := attrs.Role
		if role == "" {
			role = models.StaffRoleStaff
		}
		return &models.Staff{
			Name:           name,
			Nickname:       attrs.Nickname,
			Alias:          attrs.Alias,
			Role:           role,
			CommissionRate: attrs.CommissionRate,
			IsActive:       true,
		}, nil
	})
}

func (r *StaffRepository) Resolve(ctx context.Context, name string, attrs StaffAttrs) (*models.Staff, error) {
	s, err := commit[models.Staff](ctx, r.conn, func(tx *gorm.DB) (uint, error) {
		s, err := r.ResolveTx(tx, name, attrs)
		if err != nil {
			return 0, err
		}
		return s.ID, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve staff %q: %w", name, err)
	}
	return s, nil
}

func (r *StaffRepository) GetByID(ctx context.Context, id uint) (*models.Staff, error) {
	return findByID[models.Staff](r.conn.DB(ctx), id)
}

// List returns staff ordered by name, optionally only those still active.
func (r *StaffRepository) List(ctx context.Context, activeOnly bool) ([]models.Staff, error) {
	var out []models.Staff
	q := r.conn.DB(ctx).Order("name").Order("id")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return out, nil
}

// Search matches keyword against name, nickname and alias.
func (r *StaffRepository) Search(ctx context.Context, keyword string) ([]models.Staff, error) {
	var out []models.Staff
	p := likePattern(keyword)
	err := r.conn.DB(ctx).
		Where("name LIKE ? ESCAPE '\\' OR nickname LIKE ? ESCAPE '\\' OR alias LIKE ? ESCAPE '\\'", p, p, p).
		Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("search staff: %w", err)
	}
	return out, nil
}

// Update applies the non-nil fields; nil is returned when the staff member does not exist.
func (r *StaffRepository) Update(ctx context.Context, id uint, u StaffUpdate) (*models.Staff, error) {
	cols := map[string]any{}
	if u.Nickname != nil {
		cols["nickname"] = *u.Nickname
	}
	if u.Alias != nil {
		cols["alias"] = *u.Alias
	}
	if u.Role != nil {
		if err := (StaffAttrs{Role: *u.Role}).validate(); err != nil {
			return nil, err
		}
		cols["role"] = *u.Role
	}
	if u.CommissionRate != nil {
		if err := (StaffAttrs{CommissionRate: *u.CommissionRate}).validate(); err != nil {
			return nil, err
		}
		cols["commission_rate"] = *u.CommissionRate
	}
	if u.IsActive != nil {
		cols["is_active"] = *u.IsActive
	}
	ok, err := updateByID(r.conn.DB(ctx), &models.Staff{}, id, cols)
	if err != nil {
		return nil, fmt.Errorf("update staff %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

// Deactivate marks a staff member inactive and reports whether it existed.
func (r *StaffRepository) Deactivate(ctx context.Context, id uint) (bool, error) {
	inactive := false
	s, err := r.Update(ctx, id, StaffUpdate{IsActive: &inactive})
	return s != nil, err
}
